package p2p

import (
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"
)

// maintenanceLoop runs the periodic upkeep:
// re-seek peers and re-dial bootstrap when below MinPeers, keep syncing
// via one random verified peer, and expire old bans.
func (n *Node) maintenanceLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.MaintenanceEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.runMaintenance()
		case <-n.stopCh:
			return
		}
	}
}

func (n *Node) runMaintenance() {
	n.expireBans()

	verified := make([]*Peer, 0)
	for _, p := range n.Peers() {
		if p.isVerified() {
			verified = append(verified, p)
		}
	}

	if len(verified) < n.cfg.MinPeers {
		n.logger.WithFields(log.Fields{"verified": len(verified), "min": n.cfg.MinPeers}).
			Info("p2p: below MinPeers, re-seeking peers")
		for _, p := range verified {
			n.sendEnvelope(p, MsgQueryPeers, struct{}{})
		}
		for _, addr := range n.cfg.BootstrapPeers {
			addr := addr
			go func() {
				if err := n.DialSeed(addr); err != nil {
					n.logger.WithField("addr", addr).Debug("p2p: maintenance redial failed")
				}
			}()
		}
	}

	if len(verified) > 0 {
		target := verified[rand.Intn(len(verified))]
		n.sendEnvelope(target, MsgQueryLatest, struct{}{})
	}
}
