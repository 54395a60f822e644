// Package xid generates prefixed identifiers for sale rows and local
// queue entries. The embedded UUID keeps identifiers collision-free across
// terminals that may capture sales offline at the same time.
package xid

import (
	"fmt"

	"github.com/google/uuid"
)

func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
