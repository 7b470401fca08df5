// SPDX-License-Identifier: MIT
// Copyright © 2025–2026 The wikichat authors

package wikichat

type EmptyRouterError struct {
}

func (EmptyRouterError) Error() string {
	return "router has no handlers"
}

type ConsumerCloseError struct {
}

func (ConsumerCloseError) Error() string {
	return "close consumer, dropped with error"
}
