package rtc

import (
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// NewAPI builds a pion API with the default codecs and pion logs routed into
// the global zerolog logger.
func NewAPI() (*webrtc.API, error) {
	se := webrtc.SettingEngine{
		LoggerFactory: NewLoggerFactory(log.Logger),
	}

	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	return webrtc.NewAPI(
		webrtc.WithSettingEngine(se),
		webrtc.WithMediaEngine(me),
	), nil
}
