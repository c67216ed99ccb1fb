package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"rtaudio-pipeline/internal/auth"
	"rtaudio-pipeline/internal/config"
	"rtaudio-pipeline/internal/control"
	"rtaudio-pipeline/internal/pipeline"
	"rtaudio-pipeline/internal/presets"
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: pipelinectl [flags] <command>\n\ncommands:")
	for _, c := range commandList() {
		fmt.Fprintf(flag.CommandLine.Output(), " %s", c)
	}
	fmt.Fprintln(flag.CommandLine.Output())
	flag.PrintDefaults()
}

func commandList() []string {
	var names []string
	for c := control.CmdPipelineReset; c <= control.CmdPipelineList; c++ {
		names = append(names, c.String())
	}
	return names
}

func main() {
	url := flag.String("url", "", "Control endpoint (default ws://127.0.0.1:8080/ws/control)")
	token := flag.String("token", "", "Bearer token")
	secret := flag.String("secret", "", "Sign a short-lived token with this shared secret (default $CONTROL_JWT_SECRET)")
	pipelineID := flag.Uint("pipeline", 0, "Pipeline id")
	elementID := flag.Uint("element", 0, "Element id")
	argA := flag.Int("a", 0, "First argument (connect: output, pll-domains: src)")
	argB := flag.Int("b", 0, "Second argument (connect: input, pll-domains: dst)")
	timeout := flag.Duration("timeout", 5*time.Second, "Request timeout")
	encode := flag.String("encode", "", "Write the named preset as a binary pipeline file and exit")
	out := flag.String("o", "pipeline.bin", "Output file for -encode")
	flag.Usage = usage
	flag.Parse()

	if *encode != "" {
		if err := encodePreset(*encode, uint32(*pipelineID), *out); err != nil {
			log.Fatalf("Encode failed: %v", err)
		}
		log.Printf("Wrote preset %s to %s", *encode, *out)
		return
	}

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	cmd, ok := control.ParseCommandType(flag.Arg(0))
	if !ok {
		log.Fatalf("Unknown command %q (one of %s)", flag.Arg(0), strings.Join(commandList(), ", "))
	}

	if *url == "" {
		*url = getEnv("CONTROL_URL", "ws://127.0.0.1:8080/ws/control")
	}
	if *secret == "" {
		*secret = os.Getenv("CONTROL_JWT_SECRET")
	}
	if *token == "" && *secret != "" {
		t, err := auth.NewSecretVerifier(*secret, os.Getenv("CONTROL_JWT_ISSUER")).
			Sign("pipelinectl", []string{"audio-control"}, time.Minute)
		if err != nil {
			log.Fatalf("Sign token: %v", err)
		}
		*token = t
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := control.Dial(ctx, *url, *token)
	if err != nil {
		log.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	req := control.Request{
		Type:     cmd,
		Pipeline: uint32(*pipelineID),
		Element:  uint32(*elementID),
		Args:     [3]int32{int32(*argA), int32(*argB)},
	}
	resp, err := client.Do(ctx, req)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	if err := printResponse(os.Stdout, resp); err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func printResponse(w io.Writer, resp control.Response) error {
	if resp.Status != control.StatusSuccess {
		return fmt.Errorf("%s", resp.Status)
	}
	if resp.Type == control.CmdPipelineList {
		var infos []pipeline.Info
		if err := json.Unmarshal(resp.Payload, &infos); err != nil {
			return err
		}
		for _, p := range infos {
			fmt.Fprintf(w, "%d\t%s\tperiod %d\trate %d\t%d buffers\n", p.ID, p.Name, p.Period, p.SampleRate, p.Buffers)
			for _, e := range p.Elements {
				fmt.Fprintf(w, "\t%d\t%s\tin %v\tout %v\n", e.ID, e.Type, e.Inputs, e.Outputs)
			}
		}
		return nil
	}
	if len(resp.Payload) > 0 {
		w.Write(resp.Payload)
		return nil
	}
	fmt.Fprintln(w, resp.Status)
	return nil
}

func encodePreset(name string, id uint32, path string) error {
	cfg, _, err := presets.Get(name, int(id))
	if err != nil {
		return fmt.Errorf("%w (one of %s)", err, strings.Join(presets.Names(), ", "))
	}
	return config.WriteFile(path, cfg)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
