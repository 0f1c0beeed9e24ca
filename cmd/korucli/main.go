// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/devblok/korender/core"
	"github.com/devblok/korender/gfx"
	"github.com/devblok/korender/gfx/vkr"
	log "github.com/sirupsen/logrus"
)

var (
	envFile    = flag.String("env", ".env", "Environment file to load the configuration from")
	showConfig = flag.Bool("config", true, "Print the effective configuration")
	debug      = flag.Bool("vkdbg", false, "Load Vulkan validation layers")
)

type adapter struct {
	gfx.AdapterInfo
	Extensions []string `json:",omitempty"`
}

type report struct {
	Configuration *core.Configuration `json:",omitempty"`
	Extensions    []string
	Adapters      []adapter
}

func main() {
	flag.Parse()

	cfg := core.DefaultConfiguration()
	if err := core.LoadEnvironment(&cfg, *envFile); err != nil {
		log.Fatal(err)
	}

	instance, err := vkr.NewInstance(nil, vkr.InstanceConfiguration{
		Debug: *debug || cfg.Renderer.Debug,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer instance.Release()

	var out report
	if *showConfig {
		out.Configuration = &cfg
	}
	out.Extensions = instance.Extensions()
	for i, info := range instance.Adapters() {
		a := adapter{AdapterInfo: info}
		if exts, err := instance.DeviceExtensions(i); err == nil {
			a.Extensions = exts
		} else {
			log.WithError(err).WithField("adapter", info.Name).Warn("device extensions")
		}
		out.Adapters = append(out.Adapters, a)
	}

	bytes, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Fprintf(os.Stdout, "%s\n", bytes)
}
