package notify

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"

	"studentevals-backend/internal/components/telemetry"
	"studentevals-backend/internal/config"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestDisabledNotifierIsNoop(t *testing.T) {
	recorder := telemetry.NewRecorder()
	n := NewNotifier(config.Notify{SmtpHost: "localhost"}, recorder)
	require.False(t, n.Enabled())
	require.NoError(t, n.ReauthRequired(context.Background(), "evals fetch", 3))
	require.Empty(t, recorder.Reports(telemetry.KindBroken))
}

func TestReauthRequired(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a container")
	}
	ctx := context.Background()

	// suppress logging
	testcontainers.Logger = log.New(io.Discard, "", 0)

	smtpServer, err := testcontainers.GenericContainer(
		ctx,
		testcontainers.GenericContainerRequest{
			Started: true,
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "haravich/fake-smtp-server",
				ExposedPorts: []string{"1025/tcp", "1080/tcp"},
				WaitingFor:   wait.ForLog("smtp://0.0.0.0:1025"),
			},
		},
	)
	if err != nil {
		t.Skipf("no container runtime: %v", err)
	}
	t.Cleanup(func() {
		smtpServer.Terminate(context.Background())
	})

	host, err := smtpServer.Host(ctx)
	require.NoError(t, err)
	smtpPort, err := smtpServer.MappedPort(ctx, "1025/tcp")
	require.NoError(t, err)
	httpPort, err := smtpServer.MappedPort(ctx, "1080/tcp")
	require.NoError(t, err)

	n := NewNotifier(config.Notify{
		SmtpHost: host,
		SmtpPort: smtpPort.Int(),
		Username: "alice@email.com",
		Password: "default",
		From:     "alice@email.com",
		To:       []string{"ops@email.com"},
	}, telemetry.NewRecorder())
	require.True(t, n.Enabled())
	require.NoError(t, n.ReauthRequired(ctx, "evals fetch", 3))

	res, err := resty.New().R().
		Get(fmt.Sprintf("http://%s:%s/messages/1.plain", host, httpPort.Port()))
	require.NoError(t, err)
	require.Contains(t, res.String(), "evals fetch job stopped")
	require.Contains(t, res.String(), "3 requests failed")
}
