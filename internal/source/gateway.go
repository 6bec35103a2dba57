package source

import (
	"context"
	"time"

	"tokencore/pkg/domain"
)

// Gateway abstracts the remote repository hosting source documents. The
// manager never talks to the network directly; all remote reads and writes
// flow through this interface.
type Gateway interface {
	FetchFile(ctx context.Context, repoURI, path, branch string) (string, error)
	WriteFile(ctx context.Context, repoURI, path, branch, content, message string) error
}

// Location addresses one document file inside a remote repository.
type Location struct {
	RepoURI  string `json:"repoUri"`
	FilePath string `json:"filePath"`
	Branch   string `json:"branch"`
}

// LinkStatus is the lifecycle state of a linked source.
type LinkStatus string

// Link lifecycle states. A failed refresh moves the link to StatusError but
// keeps the previously loaded data intact.
const (
	StatusLoading LinkStatus = "loading"
	StatusSynced  LinkStatus = "synced"
	StatusError   LinkStatus = "error"
)

// Link is the externally visible state of one linked source.
type Link struct {
	Ref        domain.SourceRef
	Location   Location
	Status     LinkStatus
	Err        error
	LastLoaded *time.Time
}
