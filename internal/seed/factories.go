// Package seed provides helpers to create demo data for development and
// testing. Nothing here runs in production.
package seed

import (
	"fmt"
	"log"
	"strings"
	"time"

	"thirtyday/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Factory builds domain entities and persists them to the database.
// It is a thin helper used by the seeder and tests.
type Factory struct {
	db    *gorm.DB
	opts  Options
	faker *gofakeit.Faker
	seq   int
}

// NewFactory creates a Factory bound to db. A zero opts.RandomSeed picks a
// time based seed.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	seed := opts.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Factory{db: db, opts: opts, faker: gofakeit.New(seed)}
}

// BuildUser constructs a user with a unique example.com address. It does not
// persist it.
func (f *Factory) BuildUser(overrides ...func(*models.User)) *models.User {
	f.seq++
	first, last := f.faker.FirstName(), f.faker.LastName()
	display := first + " " + last
	user := &models.User{
		ID:          uuid.New(),
		Email:       strings.ToLower(fmt.Sprintf("%s.%s%d@example.com", first, last, f.seq)),
		DisplayName: &display,
		CreatedAt:   f.pastTime(),
	}
	for _, override := range overrides {
		override(user)
	}
	return user
}

// CreateUser builds and persists a user.
func (f *Factory) CreateUser(overrides ...func(*models.User)) (*models.User, error) {
	user := f.BuildUser(overrides...)
	if f.opts.DryRun {
		log.Printf("[dry-run] CreateUser: %s", user.Email)
		return user, nil
	}
	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// BuildConnection constructs a connection from sender to receiver.
func (f *Factory) BuildConnection(sender, receiver *models.User, status models.ConnectionStatus) *models.FriendConnection {
	created := f.pastTime()
	return &models.FriendConnection{
		ID:         uuid.New(),
		SenderID:   sender.ID,
		ReceiverID: receiver.ID,
		Status:     status,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

// CreateConnection persists a connection between two users.
func (f *Factory) CreateConnection(sender, receiver *models.User, status models.ConnectionStatus) (*models.FriendConnection, error) {
	conn := f.BuildConnection(sender, receiver, status)
	if f.opts.DryRun {
		log.Printf("[dry-run] CreateConnection: %s -> %s (%s)", sender.Email, receiver.Email, status)
		return conn, nil
	}
	if err := f.db.Create(conn).Error; err != nil {
		return nil, err
	}
	return conn, nil
}

// BuildChallenge constructs a challenge for owner that started somewhere in
// the last MaxDays and runs for the default length.
func (f *Factory) BuildChallenge(owner *models.User, overrides ...func(*models.Challenge)) *models.Challenge {
	start := f.pastTime()
	challenge := &models.Challenge{
		ID:          uuid.New(),
		UserID:      owner.ID,
		Title:       truncate(fmt.Sprintf("30 days of %s", strings.ToLower(f.faker.Hobby())), 100),
		Description: f.faker.Sentence(12),
		StartDate:   start,
		EndDate:     start.Add(models.DefaultChallengeLength),
		CreatedAt:   start,
	}
	for _, override := range overrides {
		override(challenge)
	}
	return challenge
}

// CreateChallenge builds and persists a challenge.
func (f *Factory) CreateChallenge(owner *models.User, overrides ...func(*models.Challenge)) (*models.Challenge, error) {
	challenge := f.BuildChallenge(owner, overrides...)
	if f.opts.DryRun {
		log.Printf("[dry-run] CreateChallenge: %q for %s", challenge.Title, owner.Email)
		return challenge, nil
	}
	if err := f.db.Create(challenge).Error; err != nil {
		return nil, err
	}
	return challenge, nil
}

// pastTime returns a moment within the last MaxDays.
func (f *Factory) pastTime() time.Time {
	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 90
	}
	back := time.Duration(f.faker.Number(0, maxDays*24*60)) * time.Minute
	return time.Now().UTC().Add(-back).Truncate(time.Second)
}

// chance reports true with probability pct/100.
func (f *Factory) chance(pct int) bool {
	return f.faker.Number(1, 100) <= pct
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
