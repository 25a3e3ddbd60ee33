package p2p

import (
	"net"
	"time"
)

// admitLocked applies the admission-control checks against a
// prospective inbound connection's remote IP. It takes peerMu internally;
// callers must not already hold it.
func (n *Node) admitLocked(ip string) (reason string, ok bool) {
	n.banMu.Lock()
	expiry, banned := n.bannedIPs[ip]
	if banned {
		if time.Now().Before(expiry) {
			n.banMu.Unlock()
			return "banned", false
		}
		delete(n.bannedIPs, ip)
	}
	n.banMu.Unlock()

	n.peerMu.RLock()
	defer n.peerMu.RUnlock()

	var fromIP, fromSubnet, verifiedTotal int
	subnet := subnet24(ip)
	for _, p := range n.peers {
		if p.IP == ip {
			fromIP++
		}
		if subnet24(p.IP) == subnet {
			fromSubnet++
		}
		if p.isVerified() {
			verifiedTotal++
		}
	}

	if fromIP >= n.cfg.MaxPeersPerIP {
		return "max peers per ip", false
	}
	if fromSubnet >= n.cfg.MaxPeersPerSubnet {
		return "max peers per subnet", false
	}
	if verifiedTotal >= n.cfg.MaxPeers {
		return "max peers", false
	}
	return "", true
}

// subnet24 returns the /24 prefix of an IPv4 address, or the address
// itself for anything else (IPv6, malformed input).
func subnet24(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.To4() == nil {
		return ip
	}
	v4 := parsed.To4()
	return net.IPv4(v4[0], v4[1], v4[2], 0).String()
}

// banIP records a time-bounded ban and disconnects every peer currently
// connected from that address.
func (n *Node) banIP(ip string) {
	n.banMu.Lock()
	n.bannedIPs[ip] = time.Now().Add(banDuration)
	n.banMu.Unlock()

	n.peerMu.RLock()
	var toClose []*Peer
	for _, p := range n.peers {
		if p.IP == ip {
			toClose = append(toClose, p)
		}
	}
	n.peerMu.RUnlock()
	for _, p := range toClose {
		p.close()
	}
}

// expireBans drops ban entries whose window has elapsed, called from the
// periodic maintenance loop.
func (n *Node) expireBans() {
	now := time.Now()
	n.banMu.Lock()
	defer n.banMu.Unlock()
	for ip, expiry := range n.bannedIPs {
		if now.After(expiry) {
			delete(n.bannedIPs, ip)
		}
	}
}
