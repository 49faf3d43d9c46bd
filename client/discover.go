package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"sync"
	"time"

	"github.com/myhisun270212/notpad-bersama/lan"
)

func cmdDiscover(args []string) {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	wait := fs.Duration("wait", 6*time.Second, "How long to listen for beacons")
	group := fs.String("mc-group", lan.DefaultGroup, "Multicast group")
	port := fs.Int("mc-port", lan.DefaultPort, "Multicast port")
	iface := fs.String("iface", "", "Interface name to force (overrides -mc-subnet)")
	subnet := fs.String("mc-subnet", "", "CIDR to choose the listening NIC, e.g. 192.168.3.0/24")
	fs.Parse(args)

	if *iface == "" && *subnet != "" {
		name, err := lan.PickInterface(*subnet)
		if err != nil {
			log.Fatalf("pick interface for %s: %v", *subnet, err)
		}
		log.Printf("[discover] %s matches %s", name, *subnet)
		*iface = name
	}

	ctx, cancel := context.WithTimeout(context.Background(), *wait)
	defer cancel()

	var mu sync.Mutex
	seen := make(map[string]bool)
	err := lan.Listen(ctx, *group, *port, *iface, func(f lan.Found) {
		mu.Lock()
		defer mu.Unlock()
		if seen[f.Addr] {
			return
		}
		seen[f.Addr] = true
		log.Printf("[discover] %s at %s", f.Name, f.Addr)
	})
	if err != nil {
		log.Fatalf("listen: %v", err)
	}

	<-ctx.Done()
	mu.Lock()
	n := len(seen)
	mu.Unlock()
	if n == 0 {
		log.Printf("[discover] no relays heard after %s", *wait)
	}
}

// discoverRelay waits for the first beacon on the default group.
func discoverRelay(timeout time.Duration) (lan.Found, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	found := make(chan lan.Found, 1)
	err := lan.Listen(ctx, lan.DefaultGroup, lan.DefaultPort, "", func(f lan.Found) {
		select {
		case found <- f:
		default:
		}
	})
	if err != nil {
		return lan.Found{}, err
	}

	select {
	case f := <-found:
		return f, nil
	case <-ctx.Done():
		return lan.Found{}, errors.New("no relay heard on the network")
	}
}
