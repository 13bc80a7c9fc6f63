package spec

import "fmt"

// endpointOverride patches an action whose swagger description is wrong or
// incomplete. Returning an error skips the endpoint.
type endpointOverride func(b *builder, a *Action) error

var specialEndpoints = map[string]endpointOverride{
	// The document points at the Prefix schema; the route actually creates an
	// IPAddress and already carries the prefix.
	"post.ipam.prefixes.available_ips": func(b *builder, a *Action) error {
		schema := b.definition("IPAddress")
		if schema == nil {
			return fmt.Errorf("definition %q not found", "IPAddress")
		}
		a.Parameters = b.parseProperties(schema.Properties, schema.Required, []string{"address"})
		a.Parameters = append(a.Parameters, Parameter{
			Name:        "id",
			Type:        "integer",
			Description: "ID of the Prefix.",
			Required:    true,
		})
		a.GetDetailRouteEligible = false
		a.Description = "Create the next available IP Address in a given Prefix."
		return nil
	},
	// prefix_length is missing from the document and prefix comes from the route.
	"post.ipam.prefixes.available_prefixes": func(b *builder, a *Action) error {
		schema := b.definition("Prefix")
		if schema == nil {
			return fmt.Errorf("definition %q not found", "Prefix")
		}
		a.Parameters = b.parseProperties(schema.Properties, schema.Required, []string{"prefix"})
		a.Parameters = append(a.Parameters,
			Parameter{
				Name:        "id",
				Type:        "integer",
				Description: "ID of the Prefix.",
				Required:    true,
			},
			Parameter{
				Name:        "prefix_length",
				Type:        "integer",
				Description: "Prefix CIDR length to create.",
				Required:    true,
			},
		)
		a.GetDetailRouteEligible = false
		a.Description = "Create the next available Prefix in a given Prefix."
		return nil
	},
	// The upstream description contains markup that breaks action metadata.
	"get.secrets.generate_rsa_key_pair": func(_ *builder, a *Action) error {
		a.Description = "This endpoint can be used to generate a new RSA key pair."
		return nil
	},
	"post.secrets.get_session_key": func(_ *builder, a *Action) error {
		a.Parameters = append(a.Parameters, Parameter{
			Name:        "private_key",
			Type:        "string",
			Description: "User's private key.",
			Required:    true,
		})
		a.GetDetailRouteEligible = false
		a.Description = "Retrieve a temporary session key to use for encrypting and decrypting secrets via the API."
		return nil
	},
}
