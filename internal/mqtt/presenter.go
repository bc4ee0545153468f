package mqtt

import (
	"encoding/json"
	"strconv"

	"meater_sync/internal/logger"
	"meater_sync/internal/service"
)

// trackedFields are cleared when a probe goes away.
var trackedFields = []service.Field{
	service.FieldInternalTemp,
	service.FieldAmbientTemp,
	service.FieldCookState,
	service.FieldCookRefresh,
}

// Presenter mirrors probe state to retained topics:
//
//	<prefix>/<id>/config        settings as JSON
//	<prefix>/<id>/<field>       latest value as plain text
//	<prefix>/devices            JSON list of live ids
type Presenter struct {
	pub    Publisher
	prefix string
	qos    byte
	log    *logger.Logger
}

func NewPresenter(pub Publisher, prefix string, qos int, log *logger.Logger) *Presenter {
	if prefix == "" {
		prefix = "meater"
	}
	return &Presenter{pub: pub, prefix: prefix, qos: clampQoS(qos), log: log}
}

func (p *Presenter) topic(id, leaf string) string {
	return p.prefix + "/" + id + "/" + leaf
}

func (p *Presenter) publish(topic string, payload []byte) {
	if err := p.pub.Publish(topic, p.qos, true, payload); err != nil {
		p.log.Warnw("mqtt_publish_failed", "topic", topic, "err", err)
	}
}

// formatValue renders a field value the way home automation tools expect it.
func formatValue(v any) []byte {
	switch x := v.(type) {
	case nil:
		return []byte{}
	case string:
		return []byte(x)
	case float64:
		return []byte(strconv.FormatFloat(x, 'f', -1, 64))
	case bool:
		return []byte(strconv.FormatBool(x))
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return []byte{}
		}
		return b
	}
}

func (p *Presenter) Register(v service.DeviceView) {
	cfg, err := json.Marshal(v.DeviceSettings)
	if err != nil {
		p.log.Errorw("mqtt_config_encode_failed", "device", v.ID, "err", err)
		return
	}
	p.publish(p.topic(v.ID, "config"), cfg)
	p.publish(p.topic(v.ID, string(service.FieldCookRefresh)), formatValue(v.CookRefresh))
}

func (p *Presenter) Update(v service.DeviceView, field service.Field, value any) {
	p.publish(p.topic(v.ID, string(field)), formatValue(value))
}

// Unregister clears every retained topic of the probe.
func (p *Presenter) Unregister(id string) {
	p.publish(p.topic(id, "config"), []byte{})
	for _, f := range trackedFields {
		p.publish(p.topic(id, string(f)), []byte{})
	}
}

func (p *Presenter) Reconciled(views []service.DeviceView) {
	ids := make([]string, 0, len(views))
	for _, v := range views {
		ids = append(ids, v.ID)
	}
	b, _ := json.Marshal(ids)
	p.publish(p.prefix+"/devices", b)
}
