// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package config

import "errors"

// ErrInvalidParameter is returned when a setting is invalid.
var ErrInvalidParameter = errors.New("invalid parameter")
