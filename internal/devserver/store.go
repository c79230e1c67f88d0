package devserver

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/fitAuth/session"
)

var (
	errEmailTaken      = errors.New("email already registered")
	errUnknownCoach    = errors.New("unknown coach code")
	errUserNotFound    = errors.New("user not found")
	errSessionInactive = errors.New("session inactive")
)

type user struct {
	ID           string
	Name         string
	Email        string
	Phone        string
	AccountType  session.AccountType
	PasswordHash string
	CoachID      string
	// CoachCode is set for personal trainers; students sign up with it.
	CoachCode string
}

func (u *user) profile() session.Profile {
	return session.Profile{
		ID:      u.ID,
		Name:    u.Name,
		Email:   u.Email,
		Phone:   u.Phone,
		CoachID: u.CoachID,
	}
}

type workout struct {
	ID          string
	Title       string
	CoachID     string
	StudentID   string
	ScheduledAt time.Time
}

// directory is the in-memory user, session and workout store.
type directory struct {
	mu       sync.RWMutex
	users    map[string]*user
	byEmail  map[string]string
	byCode   map[string]string
	sessions map[string]string
	workouts []workout
}

func newDirectory() *directory {
	return &directory{
		users:    make(map[string]*user),
		byEmail:  make(map[string]string),
		byCode:   make(map[string]string),
		sessions: make(map[string]string),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func newCoachCode() string {
	var b [5]byte
	_, _ = rand.Read(b[:])
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b[:])
}

func (d *directory) addUser(u *user, coachCode string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u.Email = normalizeEmail(u.Email)
	if _, exists := d.byEmail[u.Email]; exists {
		return errEmailTaken
	}

	if coachCode != "" {
		coachID, ok := d.byCode[strings.ToUpper(strings.TrimSpace(coachCode))]
		if !ok {
			return errUnknownCoach
		}
		u.CoachID = coachID
	}

	u.ID = uuid.NewString()
	if u.AccountType == session.AccountTypePersonalTrainer {
		if u.CoachCode == "" {
			u.CoachCode = newCoachCode()
		}
		d.byCode[u.CoachCode] = u.ID
	}

	d.users[u.ID] = u
	d.byEmail[u.Email] = u.ID

	if u.CoachID != "" {
		d.workouts = append(d.workouts, workout{
			ID:          uuid.NewString(),
			Title:       "Intro assessment",
			CoachID:     u.CoachID,
			StudentID:   u.ID,
			ScheduledAt: time.Now().UTC().Add(48 * time.Hour).Truncate(time.Hour),
		})
	}
	return nil
}

func (d *directory) userByEmail(email string) (*user, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, false
	}
	u := *d.users[id]
	return &u, true
}

func (d *directory) userByID(id string) (*user, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, errUserNotFound
	}
	out := *u
	return &out, nil
}

func (d *directory) openSession(userID string) string {
	sid := uuid.NewString()
	d.mu.Lock()
	d.sessions[sid] = userID
	d.mu.Unlock()
	return sid
}

func (d *directory) checkSession(sid, userID string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if owner, ok := d.sessions[sid]; !ok || owner != userID {
		return errSessionInactive
	}
	return nil
}

func (d *directory) closeSession(sid string) {
	d.mu.Lock()
	delete(d.sessions, sid)
	d.mu.Unlock()
}

// revoke closes every session of the user with email, or every session when
// email is empty. It returns how many were closed.
func (d *directory) revoke(email string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	target := ""
	if email != "" {
		id, ok := d.byEmail[normalizeEmail(email)]
		if !ok {
			return 0
		}
		target = id
	}

	n := 0
	for sid, owner := range d.sessions {
		if target == "" || owner == target {
			delete(d.sessions, sid)
			n++
		}
	}
	return n
}

func (d *directory) workoutsFor(u *user) []workout {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]workout, 0)
	for _, w := range d.workouts {
		if w.CoachID == u.ID || w.StudentID == u.ID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out
}
