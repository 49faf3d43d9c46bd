// Package lan announces the relay over multicast UDP and lets clients on
// the same network discover it without typing an address.
package lan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	"golang.org/x/net/ipv4"
)

const (
	DefaultGroup    = "239.255.42.99"
	DefaultPort     = 35799
	DefaultInterval = 3 * time.Second
)

var ErrNoMulticastIface = errors.New("no multicast-capable interface")

// Beacon is the JSON datagram the relay multicasts.
type Beacon struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Port int    `json:"port"` // HTTP/WebSocket port being advertised
	TS   int64  `json:"ts"`
}

// Found is one relay heard on the network.
type Found struct {
	Name string
	Addr string // host:port ready to dial
	Seen time.Time
}

// Announce multicasts a beacon for name/advertisePort every interval until
// ctx is cancelled. The sender goroutine is running when it returns.
func Announce(ctx context.Context, group string, mcPort int, name string, advertisePort int, interval time.Duration) error {
	dst, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(group, strconv.Itoa(mcPort)))
	if err != nil {
		return err
	}
	conn, err := net.DialUDP("udp4", nil, dst)
	if err != nil {
		return err
	}
	if err := ipv4.NewPacketConn(conn).SetMulticastTTL(4); err != nil {
		log.Printf("[beacon] ttl: %v", err)
	}
	log.Printf("[beacon] -> %s every %s", dst, interval)

	ticker := time.NewTicker(interval)
	go func() {
		defer conn.Close()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b, _ := json.Marshal(Beacon{
					Type: "beacon",
					Name: name,
					Port: advertisePort,
					TS:   time.Now().Unix(),
				})
				if _, err := conn.Write(b); err != nil {
					log.Printf("[beacon] write: %v", err)
				}
			}
		}
	}()
	return nil
}

// Listen joins the multicast group and invokes fn for every beacon heard
// until ctx is cancelled. ifaceName forces one interface; empty joins every
// up multicast-capable interface so multi-NIC hosts hear the group wherever
// it appears.
func Listen(ctx context.Context, group string, mcPort int, ifaceName string, fn func(Found)) error {
	groupIP := net.ParseIP(group)
	if groupIP == nil {
		return fmt.Errorf("invalid multicast group %s", group)
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: mcPort})
	if err != nil {
		return err
	}

	pc := ipv4.NewPacketConn(conn)
	gaddr := &net.UDPAddr{IP: groupIP}
	joined := 0
	if ifaceName != "" {
		ifc, err := net.InterfaceByName(ifaceName)
		if err != nil {
			conn.Close()
			return fmt.Errorf("interface %s: %w", ifaceName, err)
		}
		if err := pc.JoinGroup(ifc, gaddr); err != nil {
			conn.Close()
			return fmt.Errorf("join %s on %s: %w", group, ifaceName, err)
		}
		joined++
	} else {
		ifaces, _ := net.Interfaces()
		for i := range ifaces {
			ifc := &ifaces[i]
			if ifc.Flags&net.FlagUp == 0 || ifc.Flags&net.FlagMulticast == 0 {
				continue
			}
			if pc.JoinGroup(ifc, gaddr) == nil {
				joined++
			}
		}
	}
	if joined == 0 {
		conn.Close()
		return ErrNoMulticastIface
	}
	log.Printf("[discover] joined %s:%d on %d interface(s)", group, mcPort, joined)

	go func() {
		defer conn.Close()
		buf := make([]byte, 2048)
		for {
			if ctx.Err() != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(time.Second))
			n, src, err := conn.ReadFromUDP(buf)
			if err != nil {
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				log.Printf("[discover] read: %v", err)
				continue
			}
			var b Beacon
			if json.Unmarshal(buf[:n], &b) != nil || b.Type != "beacon" || b.Port <= 0 {
				continue
			}
			fn(Found{
				Name: b.Name,
				Addr: net.JoinHostPort(src.IP.String(), strconv.Itoa(b.Port)),
				Seen: time.Now(),
			})
		}
	}()
	return nil
}
