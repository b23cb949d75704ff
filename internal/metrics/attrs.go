package metrics

import "go.opentelemetry.io/otel/attribute"

func destAttr(dest string) attribute.KeyValue {
	return attribute.String("destination", dest)
}

func kindAttr(kind string) attribute.KeyValue {
	return attribute.String("kind", kind)
}
