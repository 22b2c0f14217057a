// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package helpers holds small process-level utilities for the CLI.
package helpers

import (
	"os"
	"strings"
)

// ParseBool interprets a switch-like value. "true", "1", "yes", "on",
// "enable" and "enabled" are true; "false", "0", "no", "off", "disable" and
// "disabled" are false, all case insensitive. Empty yields defaultValue and
// anything else is true, so that DEBUG=x turns debugging on.
func ParseBool(value string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "false", "0", "no", "off", "disable", "disabled":
		return false
	case "":
		return defaultValue
	default:
		return true
	}
}

// EnvEnabled reports the first of names that is set to a non-empty value,
// read with ParseBool. It returns defaultValue when none is set.
func EnvEnabled(defaultValue bool, names ...string) bool {
	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return ParseBool(v, defaultValue)
		}
	}
	return defaultValue
}
