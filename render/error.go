// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package render

import "errors"

// ErrInvalidUser is returned when a page needs a user with a subject and
// doesn't get one.
var ErrInvalidUser = errors.New("invalid user")
