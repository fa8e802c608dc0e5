/*
Package httpserver implements the gateway status and administration server.

Routes:

  - GET /livez - liveness check
  - GET /readyz - readiness check
  - GET /drain - mark the server as not ready
  - GET /undrain - mark the server as ready
  - GET /api/v1/devices/{sensor_id} - stored lifecycle state of a sensor, never keys
  - GET /api/v1/stats - anchoring pipeline counters
  - /admin/... - signed administration requests, see AdminHandler
  - /debug/... - pprof, when enabled

Admin requests carry X-Admin-ID and X-Admin-Signature headers. The signature is
an Ed25519 signature over the request path followed by the body, base64
encoded. AdminClient produces such requests.

Example usage:

	handler := httpserver.NewHandler(manager, pipeline, logger)
	admin := httpserver.NewAdminHandler(adminKeys, manager, tokenHolder, pipeline.Intake, pipeline, logger)

	server, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               "127.0.0.1:8080",
		MetricsAddr:              "127.0.0.1:8090",
		Log:                      logger,
		DrainDuration:            45 * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}, handler, admin)
	if err != nil {
		return err
	}

	server.RunInBackground()
	defer server.Shutdown()
*/
package httpserver
