package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	sdk "github.com/SSSOC-CAN/laniakea-plugin-sdk"
	"github.com/SSSOC-CAN/laniakea-plugin-sdk/proto"
	"github.com/SSSOC-CAN/ls370-plugin/cfg"
	"github.com/SSSOC-CAN/ls370-plugin/ls370"
	bg "github.com/SSSOCPaulCote/blunderguard"
	"github.com/hashicorp/go-plugin"
	influx "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/domain"
)

var (
	pluginName                               = "ls370-plugin"
	pluginVersion                            = "1.0.0"
	laniVersionConstraint                    = ">= 0.2.0"
	minPolInterval             time.Duration = 5 * time.Second
	ErrAlreadyRecording                      = bg.Error("already recording")
	ErrAlreadyStoppedRecording               = bg.Error("already stopped recording")
	ErrBlankInfluxOrgOrBucket                = bg.Error("influx organization or bucket cannot be blank")
	ErrInvalidOrg                            = bg.Error("invalid influx organization")
	ErrInvalidBucket                         = bg.Error("invalid influx bucket")
)

type Ls370Datasource struct {
	sdk.DatasourceBase
	recording  int32 // used atomically
	quitChan   chan struct{}
	connection *ls370.Connection
	config     *cfg.Config
	client     influx.Client
	sync.WaitGroup
}

type Payload struct {
	Input       int    `json:"input"`
	Temperature string `json:"temperature"`
	Resistance  string `json:"resistance"`
	Sensor      string `json:"sensor"`
	Power       string `json:"power"`
	Status      string `json:"status"`
}

type Frame struct {
	Data []Payload `json:"data"`
}

// display renders one reading of a scan result for the frame payload. A
// per-input failure is stamped into every field of that input so downstream
// consumers always see a complete record.
func display(r ls370.Reading, err error) string {
	if err != nil {
		return "ERROR: " + err.Error()
	}
	return r.String()
}

// Implements the Datasource interface funciton StartRecord
func (e *Ls370Datasource) StartRecord() (chan *proto.Frame, error) {
	if atomic.LoadInt32(&e.recording) == 1 {
		return nil, ErrAlreadyRecording
	}
	// Make sure the bridge is actually there before streaming
	idn, err := e.connection.Identify()
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to %s", idn)
	var ticker *time.Ticker
	if e.config.PollingInterval == 0 || time.Duration(e.config.PollingInterval)*time.Second < minPolInterval {
		ticker = time.NewTicker(minPolInterval)
	} else {
		ticker = time.NewTicker(time.Duration(e.config.PollingInterval) * time.Second)
	}
	frameChan := make(chan *proto.Frame)
	var writeAPI api.WriteAPI
	if e.config.Influx {
		if e.config.InfluxOrgName == "" || e.config.InfluxBucketName == "" {
			return nil, ErrBlankInfluxOrgOrBucket
		}
		orgAPI := e.client.OrganizationsAPI()
		org, err := orgAPI.FindOrganizationByName(context.Background(), e.config.InfluxOrgName)
		if err != nil {
			return nil, ErrInvalidOrg
		}
		bucketAPI := e.client.BucketsAPI()
		buckets, err := bucketAPI.FindBucketsByOrgName(context.Background(), e.config.InfluxOrgName)
		if err != nil {
			return nil, ErrInvalidOrg
		}
		var found bool
		for _, bucket := range *buckets {
			if bucket.Name == e.config.InfluxBucketName {
				found = true
				break
			}
		}
		if !found {
			log.Printf("Creating %s bucket...", e.config.InfluxBucketName)
			_, err := bucketAPI.CreateBucketWithName(context.Background(), org, e.config.InfluxBucketName, domain.RetentionRule{EverySeconds: 0})
			if err != nil {
				return nil, err
			}
		}
		writeAPI = e.client.WriteAPI(e.config.InfluxOrgName, e.config.InfluxBucketName)
	}
	if ok := atomic.CompareAndSwapInt32(&e.recording, 0, 1); !ok {
		return nil, ErrAlreadyRecording
	}
	e.Add(1)
	go func() {
		defer e.Done()
		defer close(frameChan)
		defer func() {
			if e.config.Influx {
				writeAPI.Flush()
				e.client.Close()
			}
			ticker.Stop()
		}()
		time.Sleep(1 * time.Second) // sleep for a second while laniakea sets up the plugin
		for {
			select {
			case <-ticker.C:
				data := []Payload{}
				df := Frame{}
				current_time := time.Now()
				// One full sequential pass over the configured inputs
				results := e.connection.ScanInputs(e.config.ScanInputs)
				for _, res := range results {
					data = append(data, Payload{
						Input:       res.Input,
						Temperature: display(res.Temperature, res.Err),
						Resistance:  display(res.Resistance, res.Err),
						Sensor:      display(res.Sensor, res.Err),
						Power:       display(res.Power, res.Err),
						Status:      display(res.Status, res.Err),
					})
					if e.config.Influx && res.Err == nil {
						fields := map[string]interface{}{}
						if v, ok := res.Temperature.Float64(); ok {
							fields["kelvin"] = v
						}
						if v, ok := res.Resistance.Float64(); ok {
							fields["ohms"] = v
						}
						if v, ok := res.Power.Float64(); ok {
							fields["watts"] = v
						}
						if len(fields) > 0 {
							p := influx.NewPoint(
								"bridge",
								map[string]string{
									"input": strconv.Itoa(res.Input),
								},
								fields,
								current_time,
							)
							// write asynchronously
							writeAPI.WritePoint(p)
						}
					}
				}
				df.Data = data[:]
				// transform to json string
				b, err := json.Marshal(&df)
				if err != nil {
					log.Println(err)
					return
				}
				frameChan <- &proto.Frame{
					Source:    pluginName,
					Type:      "application/json",
					Timestamp: current_time.UnixMilli(),
					Payload:   b,
				}
			case <-e.quitChan:
				return
			}
		}
	}()
	return frameChan, nil
}

// Implements the Datasource interface funciton StopRecord
func (e *Ls370Datasource) StopRecord() error {
	if ok := atomic.CompareAndSwapInt32(&e.recording, 1, 0); !ok {
		return ErrAlreadyStoppedRecording
	}
	e.quitChan <- struct{}{}
	return nil
}

// Implements the Datasource interface funciton Stop
func (e *Ls370Datasource) Stop() error {
	close(e.quitChan)
	e.Wait()
	return nil
}

// ConnectToBridge opens the serial port with the dialect's framing and
// wraps it in a driver connection.
func ConnectToBridge(config *cfg.Config) (*ls370.Connection, *ls370.SerialChannel, error) {
	dialect, err := ls370.ParseDialect(config.Dialect)
	if err != nil {
		return nil, nil, err
	}
	channel, err := ls370.Dial(config.SerialPort, config.BaudRate, dialect)
	if err != nil {
		return nil, nil, err
	}
	return ls370.NewConnection(channel, dialect), channel, nil
}

func main() {
	config, err := cfg.InitConfig()
	if err != nil {
		log.Println(err)
		return
	}
	conn, channel, err := ConnectToBridge(config)
	if err != nil {
		log.Println(err)
		return
	}
	defer channel.Close()
	impl := &Ls370Datasource{quitChan: make(chan struct{}), connection: conn, config: config}
	if config.Influx {
		if config.InfluxURL == "" || config.InfuxAPIToken == "" {
			log.Println("Influx URL or API Token config parameters cannot be blank")
		}
		impl.client = influx.NewClientWithOptions(config.InfluxURL, config.InfuxAPIToken, influx.DefaultOptions().SetTLSConfig(&tls.Config{InsecureSkipVerify: config.InfluxSkipTLS}))
	}
	impl.SetPluginVersion(pluginVersion)              // set the plugin version before serving
	impl.SetVersionConstraints(laniVersionConstraint) // set required laniakea version before serving
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: sdk.HandshakeConfig,
		Plugins: map[string]plugin.Plugin{
			pluginName: &sdk.DatasourcePlugin{Impl: impl},
		},
		// A non-nil value here enables gRPC serving for this plugin...
		GRPCServer: plugin.DefaultGRPCServer,
	})
}
