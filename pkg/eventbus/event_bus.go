package eventbus

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"
)

type Subscriber struct {
	Handler any
}

type EventBus interface {
	Publish(args ...any)
	Subscribe(handler any)
	Unsubscribe(handler any)
	Clear()
	SubscribersCount() int
}

type EventBusWithError interface {
	EventBus
	PublishE(args ...any) error
}

var (
	ErrNoSubscribers        = errors.New("eventbus: no matching subscribers")
	ErrInvalidHandlerReturn = errors.New("eventbus: invalid handler return signature")
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

type publisherImpl struct {
	log         *logrus.Logger
	mu          sync.RWMutex
	subscribers []Subscriber
}

func NewEventPublisher(log *logrus.Logger) EventBus {
	return &publisherImpl{log: log}
}

// MatchSignature reports whether handler can be called with args.
func MatchSignature(handler any, args []any) bool {
	t := reflect.TypeOf(handler)
	if t == nil || t.Kind() != reflect.Func || t.NumIn() != len(args) {
		return false
	}
	for i, arg := range args {
		paramType := t.In(i)
		if arg == nil {
			if paramType.Kind() != reflect.Interface && paramType.Kind() != reflect.Ptr {
				return false
			}
			continue
		}
		argType := reflect.TypeOf(arg)
		if paramType.Kind() == reflect.Interface {
			if !argType.Implements(paramType) {
				return false
			}
			continue
		}
		if !argType.AssignableTo(paramType) {
			return false
		}
	}
	return true
}

func (p *publisherImpl) matching(args []any) []Subscriber {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Subscriber, 0, len(p.subscribers))
	for _, s := range p.subscribers {
		if MatchSignature(s.Handler, args) {
			out = append(out, s)
		}
	}
	return out
}

func values(args []any) []reflect.Value {
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		in[i] = reflect.ValueOf(arg)
	}
	return in
}

func (p *publisherImpl) Publish(args ...any) {
	in := values(args)
	handled := false
	for _, s := range p.matching(args) {
		v := reflect.ValueOf(s.Handler)
		func() {
			defer func() {
				if r := recover(); r != nil && p.log != nil {
					p.log.Errorf("eventbus: handler %s panicked with args %v: %v", v.Type().String(), args, r)
				}
			}()
			v.Call(in)
			handled = true
		}()
	}
	if !handled && p.log != nil {
		p.log.Warnf("eventbus.Publish: no matching subscribers for event with args: %v", args)
	}
}

// PublishE calls every matching handler and joins the errors they return.
// Handler panics are converted into errors.
func (p *publisherImpl) PublishE(args ...any) error {
	subs := p.matching(args)
	if len(subs) == 0 {
		return ErrNoSubscribers
	}

	in := values(args)
	var errs []error
	for _, s := range subs {
		v := reflect.ValueOf(s.Handler)
		func() {
			defer func() {
				if r := recover(); r != nil {
					errs = append(errs, fmt.Errorf("eventbus: handler %s panicked: %v", v.Type().String(), r))
				}
			}()
			out := v.Call(in)
			switch {
			case len(out) == 0:
			case len(out) != 1:
				errs = append(errs, fmt.Errorf("%w: handler %s returned %d values", ErrInvalidHandlerReturn, v.Type().String(), len(out)))
			case out[0].Type() != errorType:
				errs = append(errs, fmt.Errorf("%w: handler %s return type is %s", ErrInvalidHandlerReturn, v.Type().String(), out[0].Type().String()))
			case !out[0].IsNil():
				errs = append(errs, out[0].Interface().(error))
			}
		}()
	}
	return errors.Join(errs...)
}

func (p *publisherImpl) Subscribe(handler any) {
	t := reflect.TypeOf(handler)
	if t == nil || t.Kind() != reflect.Func {
		panic("handler must be a function")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, Subscriber{Handler: handler})
}

// Unsubscribe removes handler. Funcs are compared by code pointer, so every
// closure created from the same literal is treated as the same handler.
func (p *publisherImpl) Unsubscribe(handler any) {
	target := reflect.ValueOf(handler).Pointer()
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, s := range p.subscribers {
		if reflect.ValueOf(s.Handler).Pointer() == target {
			p.subscribers = append(p.subscribers[:i], p.subscribers[i+1:]...)
			return
		}
	}
}

func (p *publisherImpl) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = nil
}

func (p *publisherImpl) SubscribersCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscribers)
}
