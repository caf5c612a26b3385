/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSort is returned when a sort expression cannot be parsed.
var ErrInvalidSort = errors.New("invalid sort expression")

// Direction is the ordering direction of a sort property.
type Direction string

const (
	ASC  Direction = "ASC"
	DESC Direction = "DESC"
)

// ParseDirection accepts "asc"/"desc" in any case; empty means ASC.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ASC":
		return ASC, nil
	case "DESC":
		return DESC, nil
	default:
		return "", fmt.Errorf("%w: unknown direction %q", ErrInvalidSort, s)
	}
}

// Order is a single property/direction pair.
type Order struct {
	Property  string
	Direction Direction
}

// Sort is an ordered list of Order clauses, applied left to right.
type Sort []Order

// Unsorted is the empty Sort.
var Unsorted = Sort{}

// SortBy builds a Sort ordering every property in the same direction.
func SortBy(direction Direction, properties ...string) Sort {
	s := make(Sort, 0, len(properties))
	for _, p := range properties {
		s = append(s, Order{Property: p, Direction: direction})
	}
	return s
}

// And appends the orders of other to s.
func (s Sort) And(other Sort) Sort {
	out := make(Sort, 0, len(s)+len(other))
	out = append(out, s...)
	return append(out, other...)
}

// IsSorted reports whether at least one order is present.
func (s Sort) IsSorted() bool {
	return len(s) > 0
}

// ParseOrder parses the web form "property[,direction]", e.g. "username,desc".
func ParseOrder(expr string) (Order, error) {
	parts := strings.Split(expr, ",")
	prop := strings.TrimSpace(parts[0])
	if prop == "" {
		return Order{}, fmt.Errorf("%w: empty property in %q", ErrInvalidSort, expr)
	}
	dir := ""
	switch len(parts) {
	case 1:
	case 2:
		dir = parts[1]
	default:
		return Order{}, fmt.Errorf("%w: %q", ErrInvalidSort, expr)
	}
	d, err := ParseDirection(dir)
	if err != nil {
		return Order{}, err
	}
	return Order{Property: prop, Direction: d}, nil
}

func (o Order) String() string {
	return o.Property + " " + string(o.Direction)
}
