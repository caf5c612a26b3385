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
	"encoding/json"
	"math"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 2000
	// MaxPage keeps page*size within a 32-bit OFFSET.
	MaxPage = math.MaxInt32 / MaxPageSize
)

// QueryFilter describes a WHERE clause schema and its argument values.
type QueryFilter struct {
	Schema string
	Args   []interface{}
}

// NewQueryFilter creates a new query filter with schema and args.
func NewQueryFilter(schema string, args ...interface{}) *QueryFilter {
	return &QueryFilter{schema, args}
}

// PageRequest describes a zero-based page, optional filter, and ordering.
type PageRequest struct {
	page     int
	pageSize int
	filter   *QueryFilter
	sort     Sort
}

// PageOf returns a request for the given zero-based page.
func PageOf(page, pageSize int, sort ...Order) *PageRequest {
	return &PageRequest{page: page, pageSize: pageSize, sort: sort}
}

// NewPageRequest constructs a PageRequest with filter and sort settings.
func NewPageRequest(page int, pageSize int, filter *QueryFilter, sort Sort) *PageRequest {
	return &PageRequest{page, pageSize, filter, sort}
}

func (p *PageRequest) GetPageSize() int {
	switch {
	case p.pageSize < 1:
		return DefaultPageSize
	case p.pageSize > MaxPageSize:
		return MaxPageSize
	}
	return p.pageSize
}

func (p *PageRequest) GetPage() int {
	switch {
	case p.page < 0:
		return 0
	case p.page > MaxPage:
		return MaxPage
	}
	return p.page
}

func (p *PageRequest) GetOffset() int {
	return p.GetPage() * p.GetPageSize()
}

func (p *PageRequest) GetFilter() *QueryFilter {
	return p.filter
}

func (p *PageRequest) GetSort() Sort {
	return p.sort
}

// WithFilter returns a copy of p restricted by filter.
func (p *PageRequest) WithFilter(filter *QueryFilter) *PageRequest {
	cp := *p
	cp.filter = filter
	return &cp
}

// WithSort returns a copy of p ordered by sort.
func (p *PageRequest) WithSort(sort Sort) *PageRequest {
	cp := *p
	cp.sort = sort
	return &cp
}

// Next returns the request for the following page.
func (p *PageRequest) Next() *PageRequest {
	cp := *p
	cp.page = p.GetPage() + 1
	return &cp
}

// Page is one page of a query result together with the total element count.
type Page[T any] struct {
	Content       []*T
	Number        int
	Size          int
	TotalElements int
}

// NewPage builds a page for request holding content out of total elements.
func NewPage[T any](content []*T, request *PageRequest, total int) *Page[T] {
	if content == nil {
		content = make([]*T, 0)
	}
	return &Page[T]{
		Content:       content,
		Number:        request.GetPage(),
		Size:          request.GetPageSize(),
		TotalElements: total,
	}
}

func (p *Page[T]) TotalPages() int {
	if p.Size < 1 {
		return 1
	}
	return (p.TotalElements + p.Size - 1) / p.Size
}

func (p *Page[T]) NumberOfElements() int { return len(p.Content) }

func (p *Page[T]) IsFirst() bool { return !p.HasPrevious() }

func (p *Page[T]) IsLast() bool { return !p.HasNext() }

func (p *Page[T]) HasNext() bool { return p.Number+1 < p.TotalPages() }

func (p *Page[T]) HasPrevious() bool { return p.Number > 0 }

func (p *Page[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Content          []*T `json:"content"`
		Number           int  `json:"number"`
		Size             int  `json:"size"`
		TotalElements    int  `json:"totalElements"`
		TotalPages       int  `json:"totalPages"`
		NumberOfElements int  `json:"numberOfElements"`
		First            bool `json:"first"`
		Last             bool `json:"last"`
	}{
		Content:          p.Content,
		Number:           p.Number,
		Size:             p.Size,
		TotalElements:    p.TotalElements,
		TotalPages:       p.TotalPages(),
		NumberOfElements: p.NumberOfElements(),
		First:            p.IsFirst(),
		Last:             p.IsLast(),
	})
}

// MapPage converts the content of p with fn, keeping the paging metadata.
func MapPage[T, R any](p *Page[T], fn func(*T) *R) *Page[R] {
	content := make([]*R, 0, len(p.Content))
	for _, item := range p.Content {
		content = append(content, fn(item))
	}
	return &Page[R]{
		Content:       content,
		Number:        p.Number,
		Size:          p.Size,
		TotalElements: p.TotalElements,
	}
}

// Slice is a window of results that only knows whether a next window exists.
type Slice[T any] struct {
	Content []*T
	Number  int
	Size    int
	hasNext bool
}

// NewSlice trims a size+1 lookahead fetch down to the requested window.
func NewSlice[T any](fetched []*T, request *PageRequest) *Slice[T] {
	size := request.GetPageSize()
	hasNext := len(fetched) > size
	if hasNext {
		fetched = fetched[:size]
	}
	if fetched == nil {
		fetched = make([]*T, 0)
	}
	return &Slice[T]{Content: fetched, Number: request.GetPage(), Size: size, hasNext: hasNext}
}

func (s *Slice[T]) HasNext() bool { return s.hasNext }

func (s *Slice[T]) IsFirst() bool { return s.Number == 0 }

func (s *Slice[T]) NumberOfElements() int { return len(s.Content) }
