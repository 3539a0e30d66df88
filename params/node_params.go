// Copyright 2019 The klaytn Authors
// This file is part of the klaytn library.
//
// The klaytn library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The klaytn library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the klaytn library. If not, see <http://www.gnu.org/licenses/>.
//
// Adapted for Vision Node: the teacher's four-way CN/EN/PN/BN node-type
// enum models Klaytn's permissioned validator hierarchy, which this chain
// doesn't have (single PoW tier, no consensus-node/endpoint-node split).
// What's kept is the enum+string-conversion shape, retargeted at spec §6's
// "--role constellation|standalone" flag.

package params

import (
	"fmt"
	"strings"
)

// Role selects whether this process participates in mining/full consensus
// (Constellation) or runs as a lightweight follower that validates and
// relays but never mines (Standalone).
type Role int

const (
	RoleUnknown Role = iota
	RoleConstellation
	RoleStandalone
)

func ParseRole(role string) (Role, error) {
	switch strings.ToLower(role) {
	case "constellation":
		return RoleConstellation, nil
	case "standalone":
		return RoleStandalone, nil
	default:
		return RoleUnknown, fmt.Errorf("params: unrecognized role %q", role)
	}
}

func (r Role) String() string {
	switch r {
	case RoleConstellation:
		return "constellation"
	case RoleStandalone:
		return "standalone"
	default:
		return "unknown"
	}
}
