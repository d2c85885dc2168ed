package seed

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"thirtyday/internal/models"
	"thirtyday/internal/validation"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// fixtureNamespace derives stable user ids from emails so a fixture can be
// applied repeatedly.
var fixtureNamespace = uuid.MustParse("8f5c2f7e-4a64-4c39-9d47-3c1c6f0a1e27")

// Fixture is a hand-written data set, usually loaded from YAML:
//
//	users:
//	  - email: alice@example.com
//	    display_name: Alice
//	connections:
//	  - sender: alice@example.com
//	    receiver: bob@example.com
//	    status: pending
//	challenges:
//	  - owner: alice@example.com
//	    title: Run every day
//	    description: At least 2km
type Fixture struct {
	Users       []FixtureUser       `yaml:"users"`
	Connections []FixtureConnection `yaml:"connections"`
	Challenges  []FixtureChallenge  `yaml:"challenges"`
}

// FixtureUser is a user entry. ID is optional; set it to match the identity
// provider's subject for that account.
type FixtureUser struct {
	ID          string `yaml:"id"`
	Email       string `yaml:"email"`
	DisplayName string `yaml:"display_name"`
}

// FixtureConnection references users by email.
type FixtureConnection struct {
	Sender   string                  `yaml:"sender"`
	Receiver string                  `yaml:"receiver"`
	Status   models.ConnectionStatus `yaml:"status"`
}

// FixtureChallenge references its owner by email. Days defaults to 30.
type FixtureChallenge struct {
	Owner       string `yaml:"owner"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Days        int    `yaml:"days"`
}

// LoadFixture decodes and validates a YAML fixture.
func LoadFixture(r io.Reader) (*Fixture, error) {
	var fx Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	if err := fx.Validate(); err != nil {
		return nil, err
	}
	return &fx, nil
}

// LoadFixtureFile reads a fixture from path.
func LoadFixtureFile(path string) (*Fixture, error) {
	f, err := os.Open(path) // #nosec G304: operator-supplied seed file
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return LoadFixture(f)
}

// Validate checks references and the one-row-per-pair rule.
func (fx *Fixture) Validate() error {
	known := make(map[string]bool, len(fx.Users))
	for i, u := range fx.Users {
		email := strings.ToLower(strings.TrimSpace(u.Email))
		if err := validation.ValidateEmail(email); err != nil {
			return fmt.Errorf("users[%d]: %w", i, err)
		}
		if known[email] {
			return fmt.Errorf("users[%d]: duplicate email %s", i, email)
		}
		if u.ID != "" {
			if _, err := uuid.Parse(u.ID); err != nil {
				return fmt.Errorf("users[%d]: invalid id %q", i, u.ID)
			}
		}
		known[email] = true
	}

	pairs := make(map[[2]string]bool, len(fx.Connections))
	for i, c := range fx.Connections {
		sender, receiver := strings.ToLower(c.Sender), strings.ToLower(c.Receiver)
		if !known[sender] || !known[receiver] {
			return fmt.Errorf("connections[%d]: unknown user", i)
		}
		if sender == receiver {
			return fmt.Errorf("connections[%d]: %s cannot connect to themselves", i, sender)
		}
		if !c.Status.Valid() {
			return fmt.Errorf("connections[%d]: invalid status %q", i, c.Status)
		}
		key := [2]string{sender, receiver}
		if receiver < sender {
			key = [2]string{receiver, sender}
		}
		if pairs[key] {
			return fmt.Errorf("connections[%d]: %s and %s already have a connection", i, sender, receiver)
		}
		pairs[key] = true
	}

	for i, ch := range fx.Challenges {
		if !known[strings.ToLower(ch.Owner)] {
			return fmt.Errorf("challenges[%d]: unknown owner %s", i, ch.Owner)
		}
		if err := validation.ValidateChallengeTitle(ch.Title); err != nil {
			return fmt.Errorf("challenges[%d]: %w", i, err)
		}
		if err := validation.ValidateChallengeDescription(ch.Description); err != nil {
			return fmt.Errorf("challenges[%d]: %w", i, err)
		}
		if ch.Days < 0 {
			return fmt.Errorf("challenges[%d]: days must be positive", i)
		}
	}
	return nil
}

// ApplyFixture upserts the fixture in one transaction. Users are matched by
// email and connections by pair, so applying the same fixture twice leaves
// the database unchanged.
func (s *Seeder) ApplyFixture(fx *Fixture) error {
	if s.opts.DryRun {
		log.Printf("[dry-run] ApplyFixture: %d users, %d connections, %d challenges",
			len(fx.Users), len(fx.Connections), len(fx.Challenges))
		return nil
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		ids := make(map[string]uuid.UUID, len(fx.Users))
		for _, fu := range fx.Users {
			user, err := upsertFixtureUser(tx, fu)
			if err != nil {
				return err
			}
			ids[user.Email] = user.ID
		}

		for _, fc := range fx.Connections {
			sender, receiver := ids[strings.ToLower(fc.Sender)], ids[strings.ToLower(fc.Receiver)]
			if err := upsertFixtureConnection(tx, sender, receiver, fc.Status); err != nil {
				return err
			}
		}

		for _, fch := range fx.Challenges {
			if err := upsertFixtureChallenge(tx, ids[strings.ToLower(fch.Owner)], fch); err != nil {
				return err
			}
		}
		log.Printf("✓ fixture applied: %d users, %d connections, %d challenges",
			len(fx.Users), len(fx.Connections), len(fx.Challenges))
		return nil
	})
}

func upsertFixtureUser(tx *gorm.DB, fu FixtureUser) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(fu.Email))
	id := uuid.NewSHA1(fixtureNamespace, []byte(email))
	if fu.ID != "" {
		id = uuid.MustParse(fu.ID)
	}
	user := &models.User{ID: id, Email: email}
	if name := strings.TrimSpace(fu.DisplayName); name != "" {
		user.DisplayName = &name
	}

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "updated_at"}),
	}).Create(user).Error; err != nil {
		return nil, fmt.Errorf("upsert user %s: %w", email, err)
	}
	// The row may predate the fixture under a different id.
	if err := tx.Where("email = ?", email).First(user).Error; err != nil {
		return nil, fmt.Errorf("reload user %s: %w", email, err)
	}
	return user, nil
}

func upsertFixtureConnection(tx *gorm.DB, sender, receiver uuid.UUID, status models.ConnectionStatus) error {
	var existing models.FriendConnection
	err := tx.Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
		sender, receiver, receiver, sender).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		conn := &models.FriendConnection{SenderID: sender, ReceiverID: receiver, Status: status}
		if err := tx.Create(conn).Error; err != nil {
			return fmt.Errorf("create connection: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("find connection: %w", err)
	}

	if existing.SenderID == sender && existing.Status == status {
		return nil
	}
	return tx.Model(&models.FriendConnection{}).Where("id = ?", existing.ID).Updates(map[string]any{
		"sender_id":   sender,
		"receiver_id": receiver,
		"status":      status,
		"updated_at":  time.Now().UTC(),
	}).Error
}

func upsertFixtureChallenge(tx *gorm.DB, owner uuid.UUID, fch FixtureChallenge) error {
	title := strings.TrimSpace(fch.Title)
	var count int64
	if err := tx.Model(&models.Challenge{}).
		Where("user_id = ? AND title = ?", owner, title).
		Count(&count).Error; err != nil {
		return fmt.Errorf("find challenge: %w", err)
	}
	if count > 0 {
		return nil
	}

	length := models.DefaultChallengeLength
	if fch.Days > 0 {
		length = time.Duration(fch.Days) * 24 * time.Hour
	}
	start := time.Now().UTC().Truncate(time.Second)
	challenge := &models.Challenge{
		UserID:      owner,
		Title:       title,
		Description: strings.TrimSpace(fch.Description),
		StartDate:   start,
		EndDate:     start.Add(length),
	}
	if err := tx.Create(challenge).Error; err != nil {
		return fmt.Errorf("create challenge %q: %w", title, err)
	}
	return nil
}
