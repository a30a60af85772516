// Package accesslist decides which clients may query the server.
package accesslist

import (
	"net"

	"github.com/semihalev/zlog/v2"
	"github.com/yl2chen/cidranger"

	"github.com/russdns/russdns/config"
)

// AccessList type
type AccessList struct {
	ranger cidranger.Ranger
	size   int
}

// New return accesslist. Unparsable entries are logged and skipped.
func New(cfg *config.Config) *AccessList {
	a := new(AccessList)
	a.ranger = cidranger.NewPCTrieRanger()
	for _, cidr := range cfg.AccessList {
		_, ipnet, err := net.ParseCIDR(cidr)
		if err != nil {
			zlog.Error("Access list parse cidr failed", "cidr", cidr, "error", err.Error())
			continue
		}

		if err := a.ranger.Insert(cidranger.NewBasicRangerEntry(*ipnet)); err != nil {
			zlog.Error("Access list insert failed", "cidr", cidr, "error", err.Error())
			continue
		}

		a.size++
	}

	return a
}

// Allowed reports whether ip may query. An empty list allows every client.
func (a *AccessList) Allowed(ip net.IP) bool {
	if a == nil || a.size == 0 {
		return true
	}

	if ip == nil {
		return false
	}

	allowed, _ := a.ranger.Contains(ip)

	return allowed
}

// Len returns the number of networks in the list.
func (a *AccessList) Len() int {
	if a == nil {
		return 0
	}
	return a.size
}
