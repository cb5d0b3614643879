package netgear

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	serviceParentalControl = "ParentalControl"
	serviceDeviceConfig    = "DeviceConfig"

	// any value is accepted by the firmware as long as it is used consistently.
	sessionID = "A7D88AE69687E58D9A00"

	responseCodeOK = "000"
)

var ErrRouterRejected = errors.New("router rejected request")

// Router is the action side of the rebooter.
type Router interface {
	Reboot(ctx context.Context) error
}

// SOAPRouter drives a Netgear router through the SOAP API used by the Genie app.
type SOAPRouter struct {
	url        string
	username   string
	password   string
	httpClient *http.Client
}

func NewSOAPRouter(cfg Config, httpClient *http.Client) *SOAPRouter {
	cfg = cfg.withDefaults()

	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	url := cfg.URL
	if url == "" {
		url = "http://" + cfg.Host + ":" + strconv.Itoa(cfg.Port) + "/soap/server_sa/"
	}

	return &SOAPRouter{
		url:        url,
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: httpClient,
	}
}

func escape(s string) string {
	var b strings.Builder
	xml.EscapeText(&b, []byte(s))
	return b.String()
}

func envelope(body string) []byte {
	return []byte(`<?xml version="1.0" encoding="utf-8" ?>
<env:Envelope xmlns:env="http://schemas.xmlsoap.org/soap/envelope/">
<env:Header>
<SessionID>` + sessionID + `</SessionID>
</env:Header>
<env:Body>
` + body + `
</env:Body>
</env:Envelope>`)
}

func action(service, method, params string) string {
	return fmt.Sprintf(`<M1:%[2]s xmlns:M1="urn:NETGEAR-ROUTER:service:%[1]s:1">%[3]s</M1:%[2]s>`,
		service, method, params)
}

type soapResponse struct {
	Body struct {
		ResponseCode string `xml:"ResponseCode"`
	} `xml:"Body"`
}

func (r *SOAPRouter) call(ctx context.Context, service, method, params string) error {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		r.url,
		bytes.NewReader(envelope(action(service, method, params))),
	)
	if err != nil {
		return err
	}

	req.Header.Set("SOAPAction", fmt.Sprintf("urn:NETGEAR-ROUTER:service:%s:1#%s", service, method))
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "netgear: %s", method)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "netgear: %s: reading response", method)
	}

	if resp.StatusCode != http.StatusOK {
		return errors.Wrapf(ErrRouterRejected, "netgear: %s: status %d", method, resp.StatusCode)
	}

	var parsed soapResponse

	if err := xml.Unmarshal(body, &parsed); err != nil {
		return errors.Wrapf(err, "netgear: %s: decoding response", method)
	}

	if parsed.Body.ResponseCode != responseCodeOK {
		return errors.Wrapf(ErrRouterRejected, "netgear: %s: response code %q", method, parsed.Body.ResponseCode)
	}

	log.Trace().Str("Service", service).Str("Method", method).Msg("netgear: call succeeded")

	return nil
}

func (r *SOAPRouter) login(ctx context.Context) error {
	return r.call(ctx, serviceParentalControl, "Authenticate",
		"<NewUsername>"+escape(r.username)+"</NewUsername><NewPassword>"+escape(r.password)+"</NewPassword>")
}

// Reboot logs in and asks the router to reboot. The router may go down before acknowledging the
// end of the configuration session, so only the login, start and reboot calls must succeed.
func (r *SOAPRouter) Reboot(ctx context.Context) error {
	if err := r.login(ctx); err != nil {
		return err
	}

	if err := r.call(ctx, serviceDeviceConfig, "ConfigurationStarted",
		"<NewSessionID>"+sessionID+"</NewSessionID>"); err != nil {
		return err
	}

	if err := r.call(ctx, serviceDeviceConfig, "Reboot", ""); err != nil {
		return err
	}

	if err := r.call(ctx, serviceDeviceConfig, "ConfigurationFinished",
		"<NewStatus>ChangesApplied</NewStatus>"); err != nil {
		log.Debug().Err(err).Msg("netgear: configuration session not closed, router is likely rebooting")
	}

	return nil
}
