package seed

import (
	"fmt"
	"log"

	"thirtyday/internal/models"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	// Percentage (0-100) of user pairs that get a connection row.
	Density int
	// Status mix for generated connections, in percent. What is left after
	// accepted and pending becomes rejected.
	AcceptedPct int
	PendingPct  int

	ChallengesPerUser int
	MaxDays           int
	BatchSize         int
	RandomSeed        int64
	DryRun            bool
}

// DefaultOptions is what cmd/seed starts from.
var DefaultOptions = Options{
	Density:           30,
	AcceptedPct:       60,
	PendingPct:        30,
	ChallengesPerUser: 2,
	MaxDays:           90,
	BatchSize:         200,
}

// Seeder writes generated or fixture data.
type Seeder struct {
	db      *gorm.DB
	opts    Options
	factory *Factory
}

// NewSeeder creates a seeder over db.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOptions.BatchSize
	}
	return &Seeder{db: db, opts: opts, factory: NewFactory(db, opts)}
}

// ClearAll deletes every seeded row, children first.
func (s *Seeder) ClearAll() error {
	log.Println("🗑️  Clearing existing data...")
	if s.opts.DryRun {
		return nil
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		for _, model := range []any{&models.APIKey{}, &models.Challenge{}, &models.FriendConnection{}, &models.User{}} {
			if err := all.Delete(model).Error; err != nil {
				return fmt.Errorf("clear %T: %w", model, err)
			}
		}
		return nil
	})
}

// SeedSocialMesh creates count users and connects a random subset of the
// pairs. Each unordered pair gets at most one connection row.
func (s *Seeder) SeedSocialMesh(count int) ([]models.User, error) {
	users := make([]models.User, 0, count)
	for i := 0; i < count; i++ {
		users = append(users, *s.factory.BuildUser())
	}
	if err := s.insert(&users, len(users)); err != nil {
		return nil, fmt.Errorf("insert users: %w", err)
	}
	log.Printf("✓ %d users created", len(users))

	conns := make([]models.FriendConnection, 0)
	for i := range users {
		for j := i + 1; j < len(users); j++ {
			if !s.factory.chance(s.opts.Density) {
				continue
			}
			sender, receiver := &users[i], &users[j]
			if s.factory.chance(50) {
				sender, receiver = receiver, sender
			}
			conns = append(conns, *s.factory.BuildConnection(sender, receiver, s.pickStatus()))
		}
	}
	if err := s.insert(&conns, len(conns)); err != nil {
		return nil, fmt.Errorf("insert connections: %w", err)
	}
	log.Printf("✓ %d connections created", len(conns))

	return users, nil
}

// SeedChallenges gives every user perUser challenges.
func (s *Seeder) SeedChallenges(users []models.User, perUser int) ([]models.Challenge, error) {
	challenges := make([]models.Challenge, 0, len(users)*perUser)
	for i := range users {
		for n := 0; n < perUser; n++ {
			challenges = append(challenges, *s.factory.BuildChallenge(&users[i]))
		}
	}
	if err := s.insert(&challenges, len(challenges)); err != nil {
		return nil, fmt.Errorf("insert challenges: %w", err)
	}
	log.Printf("✓ %d challenges created", len(challenges))
	return challenges, nil
}

func (s *Seeder) pickStatus() models.ConnectionStatus {
	roll := s.factory.faker.Number(1, 100)
	switch {
	case roll <= s.opts.AcceptedPct:
		return models.ConnectionAccepted
	case roll <= s.opts.AcceptedPct+s.opts.PendingPct:
		return models.ConnectionPending
	default:
		return models.ConnectionRejected
	}
}

func (s *Seeder) insert(rows any, n int) error {
	if n == 0 {
		return nil
	}
	if s.opts.DryRun {
		log.Printf("[dry-run] insert %d rows of %T (no DB write)", n, rows)
		return nil
	}
	return s.db.CreateInBatches(rows, s.opts.BatchSize).Error
}
