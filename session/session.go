// Package session holds the unlocked encryption state for the lifetime of a
// login: the decrypted secret key (in a memguard Enclave), a password cache
// for locally protected entries, and cached decrypted previews. The service
// is an explicit object with a constructed lifecycle, not a process-wide
// singleton; tests run isolated sessions side by side.
package session

import (
	"sync"
	"time"

	"github.com/awnumar/memguard"

	"github.com/quillnotes/quill/keys"
)

// State is the session lifecycle: Locked -> Unlocking -> Unlocked -> Locked.
type State int

const (
	StateLocked State = iota
	StateUnlocking
	StateUnlocked
)

const (
	defaultTimeout         = 4 * time.Hour
	defaultCleanupInterval = 5 * time.Minute
	defaultFastPathWindow  = 30 * time.Second
)

// MetadataRefreshFunc is injected by the storage layer so a successful
// password unlock can push the revealed title/preview into the metadata
// index without a dependency cycle.
type MetadataRefreshFunc func(entryID, title, preview string)

// Service is the encryption session. Construct with New; call Close (or
// Lock) when the session ends so key material is wiped.
type Service struct {
	mu         sync.Mutex
	state      State
	secret     *memguard.Enclave
	publicKey  [32]byte
	cache      map[string]*cacheRow
	lastFailed map[string]bool

	timeout         time.Duration
	cleanupInterval time.Duration
	fastPathWindow  time.Duration
	refreshMeta     MetadataRefreshFunc

	sweepStop chan struct{}

	now func() time.Time // test hook
}

// Option configures a Service.
type Option func(*Service)

// WithTimeout sets how long an unused cache row stays valid.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithCleanupInterval sets how often the background sweep runs.
func WithCleanupInterval(d time.Duration) Option {
	return func(s *Service) { s.cleanupInterval = d }
}

// WithFastPathWindow sets the recency window inside which cached content is
// returned without re-checking expiry or touching lastUsed bookkeeping.
func WithFastPathWindow(d time.Duration) Option {
	return func(s *Service) { s.fastPathWindow = d }
}

// WithMetadataRefresh injects the metadata update callback.
func WithMetadataRefresh(fn MetadataRefreshFunc) Option {
	return func(s *Service) { s.refreshMeta = fn }
}

func New(opts ...Option) *Service {
	s := &Service{
		state:           StateLocked,
		cache:           make(map[string]*cacheRow),
		lastFailed:      make(map[string]bool),
		timeout:         defaultTimeout,
		cleanupInterval: defaultCleanupInterval,
		fastPathWindow:  defaultFastPathWindow,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mu.Lock()
	s.startSweepLocked()
	s.mu.Unlock()
	return s
}

// Unlock decrypts the stored secret-key blob with the user's password and
// moves the session to Unlocked. It returns false on any decryption failure
// and leaves the session locked.
func (s *Service) Unlock(encryptedKeyBlob, password string) bool {
	s.mu.Lock()
	s.state = StateUnlocking
	s.mu.Unlock()

	secret := keys.DecryptSecretKey(encryptedKeyBlob, password)
	if secret == nil {
		s.mu.Lock()
		s.state = StateLocked
		s.mu.Unlock()
		return false
	}

	pub := keys.PublicKeyOf(*secret)
	enclave := memguard.NewEnclave(secret[:])
	keys.ClearKey(secret)

	s.mu.Lock()
	s.secret = enclave
	s.publicKey = pub
	s.state = StateUnlocked
	s.mu.Unlock()
	return true
}

// Lock clears key material and all cached passwords and content, returning
// the session to Locked.
func (s *Service) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secret = nil
	s.publicKey = [32]byte{}
	s.cache = make(map[string]*cacheRow)
	s.lastFailed = make(map[string]bool)
	s.state = StateLocked
}

// Close stops the background sweep and locks the session.
func (s *Service) Close() {
	s.mu.Lock()
	if s.sweepStop != nil {
		close(s.sweepStop)
		s.sweepStop = nil
	}
	s.mu.Unlock()
	s.Lock()
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsUnlocked reports whether a decrypted secret key is held.
func (s *Service) IsUnlocked() bool {
	return s.State() == StateUnlocked
}

// PublicKey returns the session's public key. Zero when locked.
func (s *Service) PublicKey() [32]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publicKey
}

// UseKeyPair opens the enclave and passes the full key pair to fn. The
// secret copy is wiped when fn returns. Returns false without calling fn if
// the session is locked.
func (s *Service) UseKeyPair(fn func(pair keys.UserKeyPair) error) (bool, error) {
	s.mu.Lock()
	enclave := s.secret
	pub := s.publicKey
	unlocked := s.state == StateUnlocked
	s.mu.Unlock()

	if !unlocked || enclave == nil {
		return false, nil
	}

	buf, err := enclave.Open()
	if err != nil {
		return false, err
	}
	defer buf.Destroy()

	var pair keys.UserKeyPair
	copy(pair.Secret[:], buf.Bytes())
	pair.Public = pub
	defer keys.ClearKeyPair(&pair)

	return true, fn(pair)
}

// Reconfigure replaces the timeout/cleanup settings and restarts the sweep
// timer. Stop-and-restart is one critical section: timers are replaced,
// never stacked, even under concurrent Reconfigure calls.
func (s *Service) Reconfigure(opts ...Option) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sweepStop != nil {
		close(s.sweepStop)
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startSweepLocked()
}

// startSweepLocked replaces the sweep goroutine. Caller holds s.mu.
func (s *Service) startSweepLocked() {
	stop := make(chan struct{})
	s.sweepStop = stop
	interval := s.cleanupInterval

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.CleanupExpired()
			case <-stop:
				return
			}
		}
	}()
}
