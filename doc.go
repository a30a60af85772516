/*
Package main implements russdns, a filtering DNS forwarder.

russdns listens for DNS queries over UDP and answers each one in one of
three ways:

  - Names on the blocklist, or under a listed domain, are answered locally
    with a sinkhole address or a name error, depending on the block action.
  - Names answered recently are served from an LRU response cache.
  - Everything else is forwarded to a single upstream resolver and the reply
    is relayed unmodified.

Datagrams that do not decode as a DNS query are passed through to the
upstream as they are. Replies from the upstream are only accepted from the
upstream address and with the query's transaction id.

Blocklist files use one domain per line or the hosts file format. Lines
starting with # are ignored. Files are watched and reloaded on change, and
a SIGHUP reloads them as well.

Configuration:

russdns reads a TOML file (default: russdns.conf). When the file does not
exist a commented default is generated. The main options are:

  - bind: UDP listen address
  - upstream: upstream resolver, host:port
  - blockaction: "sinkhole" or "nxdomain"
  - sinkholeip: IPv4 address returned for blocked A queries
  - blocklistfiles, blocklist: blocklist files and manual entries
  - cachesize, expire: response cache capacity and lifetime of empty answers
  - timeout, maxinflight: upstream timeout and concurrent query bound
  - accesslist, clientratelimit, accesslog: client filtering and logging
  - api: HTTP address for metrics and management endpoints

Usage:

	russdns -c russdns.conf
	russdns check -c russdns.conf
	russdns version
*/
package main
