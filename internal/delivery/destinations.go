package delivery

import (
	"context"
	"fmt"

	"github.com/ziadkadry99/lifeos-notify/internal/notifications"
	"github.com/ziadkadry99/lifeos-notify/internal/preferences"
)

// Target is one destination a channel delivers to. TokenID is set for
// push tokens so that the dispatcher can refresh or deactivate them.
type Target struct {
	Destination string
	TokenID     string
}

// Destinations resolves where n goes on one channel. An empty result
// means there is nowhere to deliver; an error is treated as transient.
type Destinations func(ctx context.Context, n *notifications.Notification, pref preferences.Preference) ([]Target, error)

// Route pairs a channel adapter with the resolver of its destinations.
type Route struct {
	Adapter      ChannelAdapter
	Destinations Destinations
}

// PushTokens resolves to every active push token of the user.
func PushTokens(tokens TokenStore) Destinations {
	return func(ctx context.Context, n *notifications.Notification, _ preferences.Preference) ([]Target, error) {
		list, err := tokens.ListActive(ctx, n.UserID)
		if err != nil {
			return nil, fmt.Errorf("listing push tokens: %w", err)
		}
		out := make([]Target, 0, len(list))
		for _, tok := range list {
			out = append(out, Target{Destination: tok.Token, TokenID: tok.ID})
		}
		return out, nil
	}
}

// EmailAddress resolves to the address on the user's preferences.
func EmailAddress(_ context.Context, _ *notifications.Notification, pref preferences.Preference) ([]Target, error) {
	return single(pref.Email), nil
}

// PhoneNumber resolves to the phone number on the user's preferences.
func PhoneNumber(_ context.Context, _ *notifications.Notification, pref preferences.Preference) ([]Target, error) {
	return single(pref.Phone), nil
}

func single(destination string) []Target {
	if destination == "" {
		return nil
	}
	return []Target{{Destination: destination}}
}

// StandardRoutes pairs each adapter with the stock resolver of its
// channel. An adapter for a channel without one gets no resolver and
// fails permanently until registered with an explicit Route.
func StandardRoutes(adapters map[notifications.Channel]ChannelAdapter, tokens TokenStore) map[notifications.Channel]Route {
	resolvers := map[notifications.Channel]Destinations{
		notifications.ChannelPush:  PushTokens(tokens),
		notifications.ChannelEmail: EmailAddress,
		notifications.ChannelSMS:   PhoneNumber,
	}
	routes := make(map[notifications.Channel]Route, len(adapters))
	for ch, a := range adapters {
		routes[ch] = Route{Adapter: a, Destinations: resolvers[ch]}
	}
	return routes
}
