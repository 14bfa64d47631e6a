package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Harshitk-cp/genesis/internal/domain"
	"github.com/Harshitk-cp/genesis/internal/events"
	"github.com/Harshitk-cp/genesis/internal/service"
	"github.com/Harshitk-cp/genesis/internal/strategy"
)

type simulationOptions struct {
	Declarations        []domain.UncertaintyDeclaration
	Provider            domain.ProbeContentProvider
	Logger              *zap.Logger
	MaxProbesPerSession int
	MaxProbesPerField   int
}

var errNoDeclarations = errors.New("no declarations to simulate")

// runSimulation runs one session to completion, asking each probe on out and reading answers from in.
// Running out of input ends the session early.
func runSimulation(ctx context.Context, opts simulationOptions, in io.Reader, out io.Writer) (*domain.GenesisSession, error) {
	if len(opts.Declarations) == 0 {
		return nil, errNoDeclarations
	}
	userID := opts.Declarations[0].UserID
	for _, d := range opts.Declarations[1:] {
		if d.UserID != userID {
			return nil, fmt.Errorf("declarations belong to different users (%s, %s); use --user", userID, d.UserID)
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	bus := events.NewBus(logger)
	bus.Subscribe(domain.EventFieldConfirmed, func(_ context.Context, e domain.Event) {
		fmt.Fprintf(out, "  ✓ confirmed %v = %v (confidence %.2f)\n", e.Payload["field"], e.Payload["value"], e.Payload["confidence"])
	})

	engine := service.NewGenesisEngine(strategy.NewDefaultRegistry(), service.NewProbeGenerator(opts.Provider, logger), logger)
	engine.SetPublisher(bus)
	sessions := service.NewSessionManager(engine, logger)
	sessions.SetPublisher(bus)
	sessions.SetLimits(opts.MaxProbesPerSession, opts.MaxProbesPerField)

	created, err := engine.InitializeFromUncertainties(ctx, opts.Declarations)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "%d hypotheses for %s\n", len(created), userID)

	s, err := sessions.CreateSession(ctx, userID)
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(in)
	probe, err := sessions.GetNextProbe(ctx, s.SessionID)
	if err != nil {
		return nil, err
	}

	for n := 1; probe != nil; n++ {
		printProbe(out, n, probe)

		resp, ok := readAnswer(scanner, out, probe)
		if !ok {
			fmt.Fprintln(out, "no more input, ending session")
			if _, err := sessions.CompleteSession(ctx, s.SessionID, domain.ReasonUserEnded); err != nil {
				return nil, err
			}
			break
		}

		step, err := sessions.ProcessResponse(ctx, s.SessionID, resp)
		if err != nil {
			return nil, err
		}
		probe = step.NextProbe
	}

	final, err := sessions.GetSession(ctx, s.SessionID)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "session complete (%s): %s\n", final.CompletionReason, final.Summary)
	return final, nil
}

func printProbe(out io.Writer, n int, p *domain.ProbePacket) {
	fmt.Fprintf(out, "\n[%d] %s\n", n, p.Question)
	switch p.ProbeType {
	case domain.ProbeTypeBinaryChoice:
		for i, o := range p.Options {
			fmt.Fprintf(out, "  %d) %s\n", i+1, o)
		}
		fmt.Fprint(out, "choose an option: ")
	case domain.ProbeTypeSlider:
		fmt.Fprint(out, "0-10: ")
	case domain.ProbeTypeConfirmation:
		fmt.Fprint(out, "y/n: ")
	default:
		fmt.Fprint(out, "> ")
	}
}

// readAnswer reads lines until one parses as an answer to p. It returns false at end of input.
func readAnswer(scanner *bufio.Scanner, out io.Writer, p *domain.ProbePacket) (domain.ProbeResponse, bool) {
	for scanner.Scan() {
		resp, err := parseAnswer(p, strings.TrimSpace(scanner.Text()))
		if err == nil {
			return resp, true
		}
		fmt.Fprintf(out, "%v, try again: ", err)
	}
	return domain.ProbeResponse{}, false
}

func parseAnswer(p *domain.ProbePacket, line string) (domain.ProbeResponse, error) {
	resp := domain.ProbeResponse{ProbeID: p.ID, ResponseType: p.ProbeType}
	if line == "" {
		return resp, errors.New("empty answer")
	}

	switch p.ProbeType {
	case domain.ProbeTypeBinaryChoice:
		n, err := strconv.Atoi(line)
		if err != nil || n < 1 || n > len(p.Options) {
			return resp, fmt.Errorf("enter a number between 1 and %d", len(p.Options))
		}
		idx := n - 1
		resp.SelectedOption = &idx
	case domain.ProbeTypeSlider:
		v, err := strconv.ParseFloat(line, 64)
		if err != nil || v < domain.SliderMin || v > domain.SliderMax {
			return resp, errors.New("enter a number from 0 to 10")
		}
		resp.SliderValue = &v
	case domain.ProbeTypeConfirmation:
		var yes bool
		switch strings.ToLower(line) {
		case "y", "yes":
			yes = true
		case "n", "no":
		default:
			return resp, errors.New("answer y or n")
		}
		resp.Confirmed = &yes
	default:
		resp.ReflectionText = line
	}
	return resp, nil
}
