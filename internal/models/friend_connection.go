package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConnectionStatus represents the status of a friend connection.
type ConnectionStatus string

const (
	// ConnectionPending indicates an invite waiting on the receiver.
	ConnectionPending ConnectionStatus = "pending"
	// ConnectionAccepted indicates both users are friends. Terminal.
	ConnectionAccepted ConnectionStatus = "accepted"
	// ConnectionRejected indicates the receiver declined. Either user may re-invite.
	ConnectionRejected ConnectionStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s ConnectionStatus) Valid() bool {
	switch s {
	case ConnectionPending, ConnectionAccepted, ConnectionRejected:
		return true
	}
	return false
}

// CanTransitionTo reports whether a connection in status s may move to next.
func (s ConnectionStatus) CanTransitionTo(next ConnectionStatus) bool {
	switch s {
	case ConnectionPending:
		return next == ConnectionAccepted || next == ConnectionRejected
	case ConnectionRejected:
		return next == ConnectionPending
	}
	return false
}

// FriendConnection is the single record kept for an unordered pair of users.
// SenderID is whoever sent the most recent invite.
type FriendConnection struct {
	ID         uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	SenderID   uuid.UUID        `gorm:"type:uuid;not null;index:idx_friend_connections_sender" json:"sender_id"`
	ReceiverID uuid.UUID        `gorm:"type:uuid;not null;index:idx_friend_connections_receiver" json:"receiver_id"`
	Status     ConnectionStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	CreatedAt  time.Time        `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`

	// Relationships
	Sender   User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Receiver User `gorm:"foreignKey:ReceiverID" json:"receiver,omitempty"`
}

// TableName specifies the table name for GORM
func (FriendConnection) TableName() string {
	return "friend_connections"
}

// BeforeCreate assigns an id when the caller did not.
func (f *FriendConnection) BeforeCreate(_ *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// Involves reports whether userID is one side of the connection.
func (f *FriendConnection) Involves(userID uuid.UUID) bool {
	return f.SenderID == userID || f.ReceiverID == userID
}

// OtherID returns the id of the party that is not userID.
func (f *FriendConnection) OtherID(userID uuid.UUID) uuid.UUID {
	if f.SenderID == userID {
		return f.ReceiverID
	}
	return f.SenderID
}

// Other returns the preloaded user that is not userID.
func (f *FriendConnection) Other(userID uuid.UUID) User {
	if f.SenderID == userID {
		return f.Receiver
	}
	return f.Sender
}

// PendingConnection pairs a pending connection with the other party.
type PendingConnection struct {
	User       User             `json:"user"`
	Connection FriendConnection `json:"connection"`
}

// ConnectionList is one user's derived view of their connections.
type ConnectionList struct {
	Friends  []User              `json:"friends"`
	Incoming []PendingConnection `json:"incoming"`
	Outgoing []PendingConnection `json:"outgoing"`
}

// PartitionConnections splits rows involving userID into friends, incoming
// and outgoing invites. Input order is kept; rejected rows and rows that do
// not involve userID are dropped.
func PartitionConnections(userID uuid.UUID, rows []FriendConnection) ConnectionList {
	list := ConnectionList{
		Friends:  []User{},
		Incoming: []PendingConnection{},
		Outgoing: []PendingConnection{},
	}
	for i := range rows {
		conn := rows[i]
		if !conn.Involves(userID) {
			continue
		}
		switch conn.Status {
		case ConnectionAccepted:
			list.Friends = append(list.Friends, conn.Other(userID))
		case ConnectionPending:
			other := conn.Other(userID)
			// Strip the nested users so the pair does not serialize them twice.
			conn.Sender, conn.Receiver = User{}, User{}
			entry := PendingConnection{User: other, Connection: conn}
			if conn.ReceiverID == userID {
				list.Incoming = append(list.Incoming, entry)
			} else {
				list.Outgoing = append(list.Outgoing, entry)
			}
		}
	}
	return list
}
