// Package transports links every built-in transport into the default
// registry. Import it for side effects from binaries that pick the transport
// from configuration.
package transports

import (
	_ "github.com/drblury/pulseflow/transport/aws"
	_ "github.com/drblury/pulseflow/transport/channel"
	_ "github.com/drblury/pulseflow/transport/http"
	"github.com/drblury/pulseflow/transport/io"
	_ "github.com/drblury/pulseflow/transport/kafka"
	"github.com/drblury/pulseflow/transport/nats"
	_ "github.com/drblury/pulseflow/transport/postgres"
	"github.com/drblury/pulseflow/transport/rabbitmq"
	_ "github.com/drblury/pulseflow/transport/sqlite"
)

func init() {
	io.Register()
	nats.Register()
	rabbitmq.Register()
}
