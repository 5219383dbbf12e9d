package endpoint_test

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/spellflare/spellsync/internal/cache"
	"github.com/spellflare/spellsync/internal/endpoint"
	"github.com/spellflare/spellsync/internal/transport"
)

// Example_pairing shows a companion picking up the primary's profile when
// the two devices first see each other.
func Example_pairing() {
	ctx := context.Background()
	quiet := log.New(io.Discard, "", 0)
	link := transport.NewLink()

	phone, _ := endpoint.New(cache.NewMemory("phone"), link.Primary, &endpoint.Config{
		Role: endpoint.RolePrimary, Logger: quiet,
	})
	watch, _ := endpoint.New(cache.NewMemory("watch"), link.Companion, &endpoint.Config{
		Role: endpoint.RoleCompanion, Logger: quiet,
	})
	for _, ep := range []*endpoint.Endpoint{phone, watch} {
		if err := ep.Start(); err != nil {
			log.Fatal(err)
		}
		defer ep.Stop()
	}

	if _, err := phone.CreateProfile(ctx, "Ada", 3); err != nil {
		log.Fatal(err)
	}
	fmt.Println("phone pending before pairing:", phone.HasPendingChanges())

	link.SetReachable(true)
	link.Activate()
	for i := 0; i < 3; i++ {
		_ = phone.Flush(ctx)
		_ = watch.Flush(ctx)
	}

	s, _ := watch.CurrentProfile(ctx)
	fmt.Println("watch has:", s.Profile.Name, "grade", s.Profile.Grade)
	fmt.Println("phone pending after pairing:", phone.HasPendingChanges())

	// Output:
	// phone pending before pairing: true
	// watch has: Ada grade 3
	// phone pending after pairing: false
}
