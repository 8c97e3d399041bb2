package tlsconf

import (
	"context"
	"net"

	utls "github.com/refraction-networking/utls"

	"github.com/kaptinlin/impersonate/alpn"
)

// HandshakeOptions are the per-connection inputs of a handshake.
type HandshakeOptions struct {
	// ServerName is sent in SNI and used for hostname verification.
	ServerName string
	// ALPN narrows the advertised protocols. Zero keeps the connector list.
	ALPN alpn.Pref
}

// Handshake runs a fresh attempt over conn. On failure conn is closed.
func (c *Connector) Handshake(ctx context.Context, conn net.Conn, opts HandshakeOptions) (*utls.UConn, error) {
	a, err := c.NewAttempt()
	if err != nil {
		conn.Close() //nolint:errcheck
		return nil, err
	}
	if err := c.configure(a, opts); err != nil {
		conn.Close() //nolint:errcheck
		return nil, err
	}

	cfg := &utls.Config{
		ServerName:         opts.ServerName,
		InsecureSkipVerify: c.t.skipVerify, //nolint:gosec
		RootCAs:            c.t.roots,
		NextProtos:         a.Protocols(),
		MinVersion:         c.t.minVersion.Wire(),
		MaxVersion:         c.t.maxVersion.Wire(),
	}

	uconn := utls.UClient(conn, cfg, utls.HelloCustom)
	if err := uconn.ApplyPreset(a.Spec()); err != nil {
		uconn.Close() //nolint:errcheck
		return nil, err
	}
	if err := uconn.HandshakeContext(ctx); err != nil {
		uconn.Close() //nolint:errcheck
		return nil, err
	}
	return uconn, nil
}

func (c *Connector) configure(a *Attempt, opts HandshakeOptions) error {
	pref := c.t.alpnPref.OrDefault(alpn.Default)
	if opts.ALPN.Valid() {
		if err := a.OverrideALPN(opts.ALPN); err != nil {
			return err
		}
		pref = opts.ALPN
	}
	if err := a.ConfigureECHGrease(c.t.echGrease); err != nil {
		return err
	}
	return a.ConfigureApplicationSettings(c.t.alps, pref)
}
