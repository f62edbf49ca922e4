package mockapi

import (
	"errors"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/talentview/sessionkit/internal/domain"
)

var (
	errUserExists         = errors.New("email already registered")
	errInvalidCredentials = errors.New("invalid email or password")
	errUnknownUser        = errors.New("unknown user")
)

type user struct {
	ID           uint
	Email        string
	FirstName    string
	LastName     string
	PasswordHash []byte
}

// userStore keeps accounts and their active refresh sessions in memory.
// The mock backend restarts empty on purpose.
type userStore struct {
	mu       sync.Mutex
	nextID   uint
	byEmail  map[string]*user
	byID     map[uint]*user
	sessions map[uint]map[string]struct{} // userID -> active refresh token ids
}

func newUserStore() *userStore {
	return &userStore{
		nextID:   1,
		byEmail:  make(map[string]*user),
		byID:     make(map[uint]*user),
		sessions: make(map[uint]map[string]struct{}),
	}
}

func (s *userStore) register(email, password, firstName, lastName string) (*user, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[email]; exists {
		return nil, errUserExists
	}
	u := &user{
		ID:           s.nextID,
		Email:        email,
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: hash,
	}
	s.nextID++
	s.byEmail[email] = u
	s.byID[u.ID] = u
	return u, nil
}

func (s *userStore) authenticate(email, password string) (*user, error) {
	s.mu.Lock()
	u, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	s.mu.Unlock()
	if !ok {
		return nil, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, errInvalidCredentials
	}
	return u, nil
}

func (s *userStore) find(id uint) (*user, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, errUnknownUser
	}
	return u, nil
}

// trackSession records a refresh token id as active for the user.
func (s *userStore) trackSession(userID uint, tokenID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sessions[userID]
	if !ok {
		set = make(map[string]struct{})
		s.sessions[userID] = set
	}
	set[tokenID] = struct{}{}
}

func (s *userStore) sessionActive(userID uint, tokenID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[userID][tokenID]
	return ok
}

// revokeSessions drops every active refresh token for the user.
func (s *userStore) revokeSessions(userID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

func (u *user) dto() domain.UserDTO {
	return domain.UserDTO{ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName}
}
