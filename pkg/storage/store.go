package storage

import (
	"errors"

	"github.com/mothershiphq/mothership/pkg/types"
)

// ErrNotFound is returned by any Get-style method when no record
// exists for the given ID.
var ErrNotFound = errors.New("record not found")

// Store defines the persistence interface for sync-engine metadata,
// implemented by BoltStore.
type Store interface {
	// Users
	CreateUser(user *types.User) error
	GetUser(id string) (*types.User, error)
	ListUsers() ([]*types.User, error)
	DeleteUser(id string) error

	// Projects
	CreateProject(project *types.Project) error
	GetProject(id string) (*types.Project, error)
	GetProjectByName(name string) (*types.Project, error)
	ListProjects() ([]*types.Project, error)
	UpdateProject(project *types.Project) error
	DeleteProject(id string) error

	// Rifts
	CreateRift(rift *types.Rift) error
	GetRift(id string) (*types.Rift, error)
	GetRiftByName(projectID, name string) (*types.Rift, error)
	ListRiftsByProject(projectID string) ([]*types.Rift, error)
	UpdateRift(rift *types.Rift) error
	DeleteRift(id string) error

	// Checkpoints
	CreateCheckpoint(cp *types.Checkpoint) error
	GetCheckpoint(id string) (*types.Checkpoint, error)
	ListCheckpointsByRift(riftID string) ([]*types.Checkpoint, error)
	DeleteCheckpoint(id string, riftID string) error

	// Transactions
	CreateTransaction(txn *types.Transaction) error
	GetTransaction(id string) (*types.Transaction, error)
	ListTransactionsByRift(riftID string) ([]*types.Transaction, error)
	UpdateTransaction(txn *types.Transaction) error
	DeleteTransaction(id string) error

	// Utility
	Close() error
}
