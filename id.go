package subledger

import "github.com/xraph/subledger/id"

// ID is the identifier type for principals and payment tokens.
type ID = id.ID

// Principal is an identity able to authorize calls.
type Principal = id.Principal

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
