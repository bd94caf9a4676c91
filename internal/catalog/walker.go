package catalog

// WalkFunc is invoked for every candidate file yielded by a walk. absPath
// is the canonical real path of the file. Returning a non-nil error aborts
// the walk and propagates the error to the Walk caller.
type WalkFunc func(absPath string) error

// Walker enumerates candidate files under a root. Each Walk call starts a
// fresh traversal; there is no shared cursor state. Implementations apply
// exclusion rules during the walk and resolve every yielded path to its
// canonical real path so the same physical file is never yielded twice
// within one walk. Directory order is unspecified.
type Walker interface {
	Walk(root string, fn WalkFunc) error
}

// Checksummer computes a strong content digest for a file. Implementations
// have no side effects beyond reading the file; failure to open the file
// (permissions, deletion race) returns an error the caller treats as
// non-fatal.
type Checksummer interface {
	Sum(path string) (string, error)
}
