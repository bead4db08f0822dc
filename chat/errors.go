package chat

import "github.com/pkg/errors"

var errNotFound = errors.New("conversation not found")

// IsNotFound reports whether err means the requested conversation does not
// exist.
func IsNotFound(err error) bool {
	return errors.Is(err, errNotFound)
}
