package config

import (
	"fmt"
	"reflect"

	"github.com/docker/go-units"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Bytes is a size in bytes that may be written in config either as a plain number or in
// human-readable form, e.g. "512MiB" or "2g".
type Bytes int64

func (b Bytes) String() string {
	return units.BytesSize(float64(b))
}

var CustomHooks = []viper.DecoderConfigOption{
	viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		BytesDecodeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)),
}

func BytesDecodeHook() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if t != reflect.TypeOf(Bytes(0)) {
			return data, nil
		}
		if f.Kind() != reflect.String {
			return data, nil
		}
		size, err := units.RAMInBytes(fmt.Sprintf("%v", data))
		if err != nil {
			return nil, err
		}
		return Bytes(size), nil
	}
}
