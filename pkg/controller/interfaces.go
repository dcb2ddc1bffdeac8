/*
 * Copyright 2025 Carver Automation Corporation.
 *
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

// Package controller owns start and stop intent for nodes and tracks the
// resulting lifecycle status.
package controller

//go:generate mockgen -destination=mock_controller.go -package=controller github.com/carverauto/nodesim/pkg/controller Dispatcher,TransitionObserver

import (
	"context"

	"github.com/carverauto/nodesim/pkg/models"
)

// Dispatcher delivers lifecycle commands. A nil error means the backend
// acknowledged receipt.
type Dispatcher interface {
	Start(ctx context.Context, items []models.StartItem) error
	Stop(ctx context.Context, items []models.StopItem) error
}

// TransitionObserver is told about every status change the controller makes.
type TransitionObserver interface {
	OnTransition(ctx context.Context, t Transition)
}

// Transition causes.
const (
	CauseDispatch       = "dispatch"
	CauseAcknowledged   = "acknowledged"
	CauseTransportError = "transport_error"
	CauseAckTimeout     = "ack_timeout"
)

// Transition is one node status change.
type Transition struct {
	NodeID string
	From   models.NodeStatus
	To     models.NodeStatus
	Cause  string
}
