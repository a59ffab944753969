package app

import (
	"fmt"

	"github.com/dkeye/Rendezvous/internal/core"
)

type BackpressureAction int

const (
	KickMember BackpressureAction = iota
	DropFrame
)

func (a BackpressureAction) String() string {
	switch a {
	case KickMember:
		return "kick"
	case DropFrame:
		return "drop"
	default:
		return "unknown"
	}
}

// Policy decides what happens to an endpoint whose send queue is full.
type Policy interface {
	OnBackPressure(ep core.Endpoint, frame core.Frame) BackpressureAction
}

// SimplePolicy closes the slow endpoint.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(core.Endpoint, core.Frame) BackpressureAction {
	return KickMember
}

// DropPolicy loses the frame and keeps the endpoint.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(core.Endpoint, core.Frame) BackpressureAction {
	return DropFrame
}

// PolicyByName maps the backpressure config value to a Policy.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "kick":
		return SimplePolicy{}, nil
	case "drop":
		return DropPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown backpressure policy %q", name)
	}
}
