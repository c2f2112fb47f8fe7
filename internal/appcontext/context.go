// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package appcontext provides the custom Echo context carrying the session state.
package appcontext

import (
	"codeberg.org/harbourline/intake/internal/models"
	"github.com/labstack/echo/v4"
)

// Context is a custom Echo context with the loaded session and account.
type Context struct {
	echo.Context
	Session *models.Session        // nil if no valid session
	Account *models.AccountSummary // nil if not authenticated
}

// GetAccount returns the authenticated account, or nil if not authenticated.
func (c *Context) GetAccount() *models.AccountSummary {
	return c.Account
}

// IsAuthenticated returns true if the request carries a valid session.
func (c *Context) IsAuthenticated() bool {
	return c.Account != nil
}

// SetSession attaches a loaded session and derives the account from it.
func (c *Context) SetSession(s *models.Session) {
	c.Session = s
	if s == nil {
		c.Account = nil
		return
	}
	account := s.Account()
	c.Account = &account
}

// From returns the custom context, or nil when the middleware did not run.
func From(c echo.Context) *Context {
	if cc, ok := c.(*Context); ok {
		return cc
	}
	return nil
}

// AccountFrom returns the authenticated account of c, if any.
func AccountFrom(c echo.Context) *models.AccountSummary {
	if cc := From(c); cc != nil {
		return cc.Account
	}
	return nil
}
