package tlsconf

import (
	"slices"

	utls "github.com/refraction-networking/utls"

	"github.com/kaptinlin/impersonate/alpn"
)

const (
	extPadding        uint16 = 21
	extPreSharedKey   uint16 = 41
	extALPSOld        uint16 = 17513
	extALPSNew        uint16 = 17613
	extEncryptedHello uint16 = 0xfe0d
)

type slotKind uint8

const (
	slotNone slotKind = iota
	slotECH
	slotALPS
)

type entry struct {
	ext  utls.TLSExtension
	slot slotKind
}

// Attempt is the ClientHello configuration of a single handshake. It is
// derived from a Connector and discarded after use.
type Attempt struct {
	c       *Connector
	spec    utls.ClientHelloSpec
	entries []entry

	ech       bool
	alps      bool
	alpsPref  alpn.Pref
	alpsNew   bool
	protocols []string

	finalized *utls.ClientHelloSpec
}

// NewAttempt builds a fresh ClientHello from the profile factory and applies
// the template: ALPN, certificate compression and version bounds. The GREASE
// ECH and ALPS extensions of the base are held back in their slots until
// enabled on the attempt.
func (c *Connector) NewAttempt() (*Attempt, error) {
	spec, err := c.t.factory()
	if err != nil {
		return nil, err
	}
	a := &Attempt{
		c:         c,
		spec:      spec,
		protocols: slices.Clone(c.t.alpnProtos),
		alpsPref:  c.t.alpnPref,
	}

	for _, ext := range spec.Extensions {
		switch kind, isNew := classify(ext); kind {
		case slotALPS:
			a.alpsNew = isNew
			a.entries = append(a.entries, entry{slot: slotALPS})
		case slotECH:
			a.entries = append(a.entries, entry{ext: ext, slot: slotECH})
		default:
			a.entries = append(a.entries, entry{ext: ext})
		}
	}
	a.applyCompression()
	a.applyVersions()
	return a, nil
}

// ConfigureECHGrease adds a GREASE encrypted client hello extension when
// enable is true. False leaves the attempt untouched.
func (a *Attempt) ConfigureECHGrease(enable bool) error {
	if a.finalized != nil {
		return ErrAttemptFinalized
	}
	if !enable {
		return nil
	}
	a.ech = true
	if !a.hasSlot(slotECH) {
		a.insertTrailing(entry{ext: utls.BoringGREASEECH(), slot: slotECH})
	}
	return nil
}

// ConfigureApplicationSettings adds the ALPS extension when enable is true,
// carrying h2 for Http2 and Both and http/1.1 for Http1. The codepoint of
// the base is kept. False leaves the attempt untouched.
func (a *Attempt) ConfigureApplicationSettings(enable bool, pref alpn.Pref) error {
	if a.finalized != nil {
		return ErrAttemptFinalized
	}
	if !enable {
		return nil
	}
	a.alps = true
	a.alpsPref = pref.OrDefault(alpn.Default)
	if !a.hasSlot(slotALPS) {
		a.insertTrailing(entry{slot: slotALPS})
	}
	return nil
}

// OverrideALPN narrows the advertised protocols to pref for this attempt.
func (a *Attempt) OverrideALPN(pref alpn.Pref) error {
	if a.finalized != nil {
		return ErrAttemptFinalized
	}
	if !pref.Valid() {
		return nil
	}
	a.protocols = pref.Protocols()
	a.alpsPref = pref
	return nil
}

// Protocols returns the ALPN identifiers the attempt will advertise.
func (a *Attempt) Protocols() []string {
	return slices.Clone(a.protocols)
}

// Spec finalizes the attempt and returns its ClientHello. Permutation runs
// on the first call only; later calls return the same spec.
func (a *Attempt) Spec() *utls.ClientHelloSpec {
	if a.finalized != nil {
		return a.finalized
	}

	exts := make([]utls.TLSExtension, 0, len(a.entries))
	for _, e := range a.entries {
		switch e.slot {
		case slotECH:
			if a.ech {
				exts = append(exts, e.ext)
			}
		case slotALPS:
			if a.alps {
				exts = append(exts, a.alpsExtension())
			}
		default:
			if alpnExt, ok := e.ext.(*utls.ALPNExtension); ok {
				alpnExt.AlpnProtocols = slices.Clone(a.protocols)
			}
			exts = append(exts, e.ext)
		}
	}

	if a.c.t.permute && a.c.t.shuffle && a.c.t.shuffleFn != nil {
		exts = a.c.t.shuffleFn(exts)
	}

	spec := a.spec
	spec.Extensions = exts
	a.finalized = &spec
	return a.finalized
}

func (a *Attempt) alpsExtension() utls.TLSExtension {
	protos := []string{a.alpsPref.ApplicationProtocol()}
	if a.alpsNew {
		return &utls.ApplicationSettingsExtensionNew{SupportedProtocols: protos}
	}
	return &utls.ApplicationSettingsExtension{SupportedProtocols: protos}
}

func (a *Attempt) hasSlot(kind slotKind) bool {
	return slices.ContainsFunc(a.entries, func(e entry) bool { return e.slot == kind })
}

// insertTrailing places e before the trailing GREASE, padding and
// pre-shared key extensions, which must stay last.
func (a *Attempt) insertTrailing(e entry) {
	i := len(a.entries)
	for i > 0 && isTrailing(a.entries[i-1]) {
		i--
	}
	a.entries = slices.Insert(a.entries, i, e)
}

func (a *Attempt) applyCompression() {
	ids := a.c.CertCompression()
	i := slices.IndexFunc(a.entries, func(e entry) bool {
		_, ok := e.ext.(*utls.UtlsCompressCertExtension)
		return ok
	})
	switch {
	case len(ids) == 0 && i >= 0:
		a.entries = slices.Delete(a.entries, i, i+1)
	case len(ids) > 0 && i >= 0:
		a.entries[i].ext.(*utls.UtlsCompressCertExtension).Algorithms = ids
	case len(ids) > 0:
		a.insertTrailing(entry{ext: &utls.UtlsCompressCertExtension{Algorithms: ids}})
	}
}

func (a *Attempt) applyVersions() {
	lo, hi := a.c.t.minVersion.Wire(), a.c.t.maxVersion.Wire()
	if lo == 0 && hi == 0 {
		return
	}
	if lo != 0 {
		a.spec.TLSVersMin = lo
	}
	if hi != 0 {
		a.spec.TLSVersMax = hi
	}
	for _, e := range a.entries {
		sv, ok := e.ext.(*utls.SupportedVersionsExtension)
		if !ok {
			continue
		}
		sv.Versions = slices.DeleteFunc(sv.Versions, func(v uint16) bool {
			if isGREASE(v) {
				return false
			}
			return (lo != 0 && v < lo) || (hi != 0 && v > hi)
		})
	}
}

// classify reports whether ext is one of the held-back extensions and,
// for ALPS, whether it uses the new codepoint.
func classify(ext utls.TLSExtension) (slotKind, bool) {
	switch e := ext.(type) {
	case *utls.ApplicationSettingsExtension:
		return slotALPS, false
	case *utls.ApplicationSettingsExtensionNew:
		return slotALPS, true
	case *utls.GREASEEncryptedClientHelloExtension:
		return slotECH, false
	case *utls.GenericExtension:
		switch e.Id {
		case extALPSOld:
			return slotALPS, false
		case extALPSNew:
			return slotALPS, true
		case extEncryptedHello:
			return slotECH, false
		}
	}
	return slotNone, false
}

func isTrailing(e entry) bool {
	switch ext := e.ext.(type) {
	case *utls.UtlsGREASEExtension, *utls.UtlsPaddingExtension, *utls.UtlsPreSharedKeyExtension:
		return true
	case *utls.GenericExtension:
		return ext.Id == extPadding || ext.Id == extPreSharedKey
	}
	return false
}

func isGREASE(v uint16) bool {
	return v&0x0f0f == 0x0a0a && v>>8 == v&0xff
}
