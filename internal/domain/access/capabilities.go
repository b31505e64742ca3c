package access

// CapabilitiesFor lists the actions the caller may perform on their own
// resources, for the session payload the UI renders menus from.
func CapabilitiesFor(g *Gate, c Caller) []string {
	caps := []string{}
	for _, a := range Actions {
		ok, err := g.Allowed(c, a, Resource{OwnerID: c.UserID, Public: true})
		if err == nil && ok {
			caps = append(caps, string(a))
		}
	}
	return caps
}
