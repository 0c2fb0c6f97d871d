package encoder

// archiveRow is the parquet schema for one archived observation. Column
// names are part of the archive's public contract and never change once a
// batch is on the network. Every column outside the key group is optional,
// receivers routinely omit most of them.
type archiveRow struct {
	SnapshotTimestamp     int64  `parquet:"snapshot_timestamp"`
	IcaoAddress           string `parquet:"icao_address"`
	SnapshotTotalMessages int32  `parquet:"snapshot_total_messages"`

	Callsign        *string `parquet:"callsign,optional"`
	Registration    *string `parquet:"registration,optional"`
	AircraftType    *string `parquet:"aircraft_type,optional"`
	TypeDescription *string `parquet:"type_description,optional"`
	EmitterCategory *string `parquet:"emitter_category,optional"`

	Latitude       *float64 `parquet:"latitude,optional"`
	Longitude      *float64 `parquet:"longitude,optional"`
	PositionSource *string  `parquet:"position_source,optional"`

	AltitudeBaroFt      *int32 `parquet:"altitude_baro_ft,optional"`
	AltitudeGeomFt      *int32 `parquet:"altitude_geom_ft,optional"`
	VerticalRateBaroFpm *int32 `parquet:"vertical_rate_baro_fpm,optional"`
	VerticalRateGeomFpm *int32 `parquet:"vertical_rate_geom_fpm,optional"`

	GroundSpeedKts       *float64 `parquet:"ground_speed_kts,optional"`
	IndicatedAirspeedKts *int32   `parquet:"indicated_airspeed_kts,optional"`
	TrueAirspeedKts      *int32   `parquet:"true_airspeed_kts,optional"`
	MachNumber           *float64 `parquet:"mach_number,optional"`

	TrackDegrees           *float64 `parquet:"track_degrees,optional"`
	TrackRateDegSec        *float64 `parquet:"track_rate_deg_sec,optional"`
	MagneticHeadingDegrees *float64 `parquet:"magnetic_heading_degrees,optional"`
	TrueHeadingDegrees     *float64 `parquet:"true_heading_degrees,optional"`
	RollDegrees            *float64 `parquet:"roll_degrees,optional"`

	WindDirectionDegrees *int32 `parquet:"wind_direction_degrees,optional"`
	WindSpeedKts         *int32 `parquet:"wind_speed_kts,optional"`
	OutsideAirTempC      *int32 `parquet:"outside_air_temp_c,optional"`
	TotalAirTempC        *int32 `parquet:"total_air_temp_c,optional"`

	NavQnhMb          *float64 `parquet:"nav_qnh_mb,optional"`
	NavHeadingDegrees *float64 `parquet:"nav_heading_degrees,optional"`
	NavAltitudeMcpFt  *int32   `parquet:"nav_altitude_mcp_ft,optional"`
	NavAltitudeFmsFt  *int32   `parquet:"nav_altitude_fms_ft,optional"`

	SquawkCode      *string `parquet:"squawk_code,optional"`
	EmergencyStatus *string `parquet:"emergency_status,optional"`
	SpiFlag         *bool   `parquet:"spi_flag,optional"`
	AlertFlag       *bool   `parquet:"alert_flag,optional"`

	AdsbVersion                 *int32  `parquet:"adsb_version,optional"`
	NavigationIntegrityCategory *int32  `parquet:"navigation_integrity_category,optional"`
	NavigationAccuracyPosition  *int32  `parquet:"navigation_accuracy_position,optional"`
	NavigationAccuracyVelocity  *int32  `parquet:"navigation_accuracy_velocity,optional"`
	SourceIntegrityLevel        *int32  `parquet:"source_integrity_level,optional"`
	SourceIntegrityLevelType    *string `parquet:"source_integrity_level_type,optional"`
	GeometricVerticalAccuracy   *int32  `parquet:"geometric_vertical_accuracy,optional"`
	SystemDesignAssurance       *int32  `parquet:"system_design_assurance,optional"`
	NicBaro                     *int32  `parquet:"nic_baro,optional"`
	RadiusOfContainment         *int32  `parquet:"radius_of_containment,optional"`

	MessagesReceived        *int64   `parquet:"messages_received,optional"`
	LastSeenSeconds         *float64 `parquet:"last_seen_seconds,optional"`
	LastPositionSeenSeconds *float64 `parquet:"last_position_seen_seconds,optional"`
	RssiDbm                 *float64 `parquet:"rssi_dbm,optional"`

	DistanceFromReceiverNm     *float64 `parquet:"distance_from_receiver_nm,optional"`
	BearingFromReceiverDegrees *float64 `parquet:"bearing_from_receiver_degrees,optional"`

	DatabaseFlags *int32 `parquet:"database_flags,optional"`
}
