package backend

import (
	"context"
	"net/http"
)

// ListPersons returns every person record.
func (c *Client) ListPersons(ctx context.Context) ([]Record, error) {
	return c.getList(ctx, PathPersons, nil)
}

// ListPersonsPage returns one page of person records.
func (c *Client) ListPersonsPage(ctx context.Context, p Page) ([]Record, error) {
	return c.getList(ctx, PathPersons, p.values())
}

// ListDevices returns one page of device records.
func (c *Client) ListDevices(ctx context.Context, p Page) ([]Record, error) {
	return c.getList(ctx, PathDevices, p.values())
}

// ListAllDevices returns every device record, unpaginated.
func (c *Client) ListAllDevices(ctx context.Context) ([]Record, error) {
	return c.getList(ctx, PathDevicesAll, nil)
}

// GetDevice returns a single device.
func (c *Client) GetDevice(ctx context.Context, id string) (Record, error) {
	escaped, err := escapeID(id)
	if err != nil {
		return nil, err
	}
	return c.getObject(ctx, PathDevices+"/"+escaped, nil)
}

// CreateDevice creates a device and returns the backend's copy.
func (c *Client) CreateDevice(ctx context.Context, device Record) (Record, error) {
	v, err := c.do(ctx, http.MethodPost, PathDevices, nil, device)
	if err != nil {
		return nil, err
	}
	return UnwrapObject(v), nil
}

// UpdateDevice replaces a device's editable fields.
func (c *Client) UpdateDevice(ctx context.Context, id string, device Record) (Record, error) {
	escaped, err := escapeID(id)
	if err != nil {
		return nil, err
	}
	v, err := c.do(ctx, http.MethodPut, PathDevices+"/"+escaped, nil, device)
	if err != nil {
		return nil, err
	}
	return UnwrapObject(v), nil
}

// DeleteDevice removes a device.
func (c *Client) DeleteDevice(ctx context.Context, id string) error {
	escaped, err := escapeID(id)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodDelete, PathDevices+"/"+escaped, nil, nil)
	return err
}

// UpdateDeviceStatus sets one device's status.
func (c *Client) UpdateDeviceStatus(ctx context.Context, id, status string) error {
	escaped, err := escapeID(id)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPut, PathDevices+"/"+escaped+"/status", nil, Record{"status": status})
	return err
}

// BatchUpdateDeviceStatus sets the same status on several devices.
func (c *Client) BatchUpdateDeviceStatus(ctx context.Context, ids []string, status string) error {
	if len(ids) == 0 {
		return ErrMissingID
	}
	_, err := c.do(ctx, http.MethodPut, PathDeviceStatusBatch, nil, Record{"deviceIds": ids, "status": status})
	return err
}

// ListActiveMappings returns the active person-device mappings.
func (c *Client) ListActiveMappings(ctx context.Context) ([]Record, error) {
	return c.getList(ctx, PathMappingsActive, nil)
}

// MappingRequest binds a device to a person.
type MappingRequest struct {
	PersonID    string `json:"personId"`
	DeviceID    string `json:"deviceId"`
	MappingName string `json:"mappingName,omitempty"`
}

// CreateMapping creates a binding and returns the backend's copy.
func (c *Client) CreateMapping(ctx context.Context, m MappingRequest) (Record, error) {
	if m.PersonID == "" || m.DeviceID == "" {
		return nil, ErrMissingID
	}
	v, err := c.do(ctx, http.MethodPost, PathMappings, nil, m)
	if err != nil {
		return nil, err
	}
	return UnwrapObject(v), nil
}

// DeleteMapping removes a binding.
func (c *Client) DeleteMapping(ctx context.Context, id string) error {
	escaped, err := escapeID(id)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodDelete, PathMappings+"/"+escaped, nil, nil)
	return err
}
