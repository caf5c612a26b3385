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

package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/tomoncle/datajpa/dto"
	"github.com/tomoncle/datajpa/entity"
	"github.com/tomoncle/datajpa/repository"
	"github.com/tomoncle/datajpa/types"
	"github.com/tomoncle/datajpa/utils"
)

const (
	contentTypeHeader = "content-type"
	jsonContentType   = "application/json"
	textContentType   = "text/plain; charset=utf-8"

	PathMember          = "/members/{id}"
	PathMemberConverted = "/members2/{id}"
	PathMembers         = "/members"

	DefaultPageSize = 5
)

// sortable lists the properties clients may sort members by.
var sortable = map[string]string{
	"id":       "ID",
	"username": "username",
	"age":      "age",
}

type memberCtxKey struct{}

// MemberFromContext returns the member loaded by the converter middleware.
func MemberFromContext(ctx context.Context) (*entity.Member, bool) {
	m, ok := ctx.Value(memberCtxKey{}).(*entity.Member)
	return m, ok && m != nil
}

// MemberController serves members over HTTP.
type MemberController struct {
	members     repository.MemberRepository
	pageSize    int
	defaultSort types.Sort
	logger      logrus.FieldLogger
}

type Option func(*MemberController)

func WithDefaultPageSize(size int) Option {
	return func(c *MemberController) {
		if size > 0 {
			c.pageSize = size
		}
	}
}

// WithDefaultSort sets the ordering used when a request has no sort param.
func WithDefaultSort(sort types.Sort) Option {
	return func(c *MemberController) { c.defaultSort = sort }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *MemberController) { c.logger = logger }
}

func NewMemberController(members repository.MemberRepository, opts ...Option) *MemberController {
	c := &MemberController{
		members:     members,
		pageSize:    DefaultPageSize,
		defaultSort: types.SortBy(types.ASC, "age"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = utils.NewLogger("CONTROLLER")
	}
	return c
}

// RegisterRoutes mounts the member endpoints on router.
func (c *MemberController) RegisterRoutes(router chi.Router) {
	router.Get(PathMember, c.findMember)
	router.With(c.memberConverter).Get(PathMemberConverted, c.findMemberConverted)
	router.Get(PathMembers, c.list)
}

// NewRouter returns a router serving only the member endpoints.
func (c *MemberController) NewRouter() *chi.Mux {
	router := chi.NewRouter()
	c.RegisterRoutes(router)
	return router
}

func (c *MemberController) findMember(rw http.ResponseWriter, req *http.Request) {
	member, status, err := c.loadMember(req)
	if err != nil {
		http.Error(rw, err.Error(), status)
		return
	}
	c.writeText(rw, member.Username)
}

// memberConverter resolves the {id} path parameter into a member stored in
// the request context.
func (c *MemberController) memberConverter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		member, status, err := c.loadMember(req)
		if err != nil {
			http.Error(rw, err.Error(), status)
			return
		}
		ctx := context.WithValue(req.Context(), memberCtxKey{}, member)
		next.ServeHTTP(rw, req.WithContext(ctx))
	})
}

func (c *MemberController) findMemberConverted(rw http.ResponseWriter, req *http.Request) {
	member, ok := MemberFromContext(req.Context())
	if !ok {
		http.Error(rw, "member not resolved", http.StatusInternalServerError)
		return
	}
	c.writeText(rw, member.Username)
}

func (c *MemberController) loadMember(req *http.Request) (*entity.Member, int, error) {
	id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
	if err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("invalid member id %q", chi.URLParam(req, "id"))
	}
	member, err := c.members.FindByID(req.Context(), id)
	switch {
	case errors.Is(err, repository.ErrEntityNotFound):
		return nil, http.StatusNotFound, fmt.Errorf("member %d not found", id)
	case err != nil:
		c.logger.WithError(err).WithField("id", id).Error("can't load member")
		return nil, http.StatusInternalServerError, errors.New("can't load member")
	}
	return member, http.StatusOK, nil
}

func (c *MemberController) list(rw http.ResponseWriter, req *http.Request) {
	pageRequest, err := c.pageRequest(req)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}
	page, err := c.members.FindAllPage(req.Context(), pageRequest)
	if err != nil {
		c.logger.WithError(err).Error("can't load member page")
		http.Error(rw, "can't load members", http.StatusInternalServerError)
		return
	}
	c.writeJSON(rw, types.MapPage(page, dto.FromMember))
}

// pageRequest reads ?page=&size=&sort=prop[,dir]; sort may repeat.
func (c *MemberController) pageRequest(req *http.Request) (*types.PageRequest, error) {
	query := req.URL.Query()
	page, err := intParam(query.Get("page"), 0)
	if err != nil {
		return nil, fmt.Errorf("invalid page: %w", err)
	}
	if page < 0 || page > types.MaxPage {
		return nil, fmt.Errorf("invalid page: %d is outside 0..%d", page, types.MaxPage)
	}
	size, err := intParam(query.Get("size"), c.pageSize)
	if err != nil {
		return nil, fmt.Errorf("invalid size: %w", err)
	}

	sort := c.defaultSort
	if exprs := query["sort"]; len(exprs) > 0 {
		sort = make(types.Sort, 0, len(exprs))
		for _, expr := range exprs {
			order, err := types.ParseOrder(expr)
			if err != nil {
				return nil, err
			}
			property, ok := sortable[strings.ToLower(order.Property)]
			if !ok {
				return nil, fmt.Errorf("%w: can't sort members by %q", types.ErrInvalidSort, order.Property)
			}
			order.Property = property
			sort = append(sort, order)
		}
	}
	return types.PageOf(page, size, sort...), nil
}

func intParam(value string, def int) (int, error) {
	if value == "" {
		return def, nil
	}
	return strconv.Atoi(value)
}

func (c *MemberController) writeText(rw http.ResponseWriter, body string) {
	rw.Header().Set(contentTypeHeader, textContentType)
	if _, err := rw.Write([]byte(body)); err != nil {
		c.logger.Error("can't write response: ", err)
	}
}

func (c *MemberController) writeJSON(rw http.ResponseWriter, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		c.logger.Error("unable to marshal response ", err)
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	rw.Header().Set(contentTypeHeader, jsonContentType)
	if _, err := rw.Write(data); err != nil {
		c.logger.Error("can't write response: ", err)
	}
}
