// Package ident generates prefixed opaque identifiers for values that
// need uniqueness outside the database, such as request IDs.
package ident

import (
	"fmt"

	"github.com/google/uuid"
)

func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
